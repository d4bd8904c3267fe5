package formats

import (
	"testing"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadXMLLookups(t *testing.T) {
	doc := []byte(`<?xml version="1.0" encoding="Shift_JIS"?>
<x:vsq4 xmlns:x="http://www.yamaha.co.jp/vocaloid/schema/vsq4/">
  <x:masterTrack>
    <x:resolution> 480 </x:resolution>
    <x:tempo><x:t>0</x:t><x:v>12000</x:v></x:tempo>
    <x:tempo><x:t>1920</x:t><x:v>14000</x:v></x:tempo>
  </x:masterTrack>
  <x:note Clock="3840" Lyric="あ"><x:y><![CDATA[あ]]></x:y></x:note>
</x:vsq4>`)

	root, err := readXML(doc)
	require.NoError(t, err)
	assert.Equal(t, "vsq4", root.Tag)

	res, ok := childInt(childPath(root, "masterTrack"), "resolution")
	require.True(t, ok)
	assert.Equal(t, int64(480), res)
	assert.Len(t, childElements(childPath(root, "masterTrack"), "tempo"), 2)

	note := childPath(root, "note")
	clock, ok := attrInt(note, "Clock")
	require.True(t, ok)
	assert.Equal(t, int64(3840), clock)
	lyric, _ := childText(note, "y")
	assert.Equal(t, "あ", lyric)

	assert.Nil(t, childPath(root, "missing", "child"))
	assert.Empty(t, childElements(nil, "tempo"))
	_, ok = attr(nil, "Clock")
	assert.False(t, ok)
}

func TestReadXMLRejectsEmpty(t *testing.T) {
	_, err := readXML([]byte(`<?xml version="1.0"?>`))
	assert.Error(t, err)
}

func TestWriteXMLRoundTrip(t *testing.T) {
	root := etree.NewElement("root")
	addText(root, "name", "a < b")
	addCData(root, "lyric", "あ")
	addElement(root, "empty", "id", "1")

	out, err := writeXML(root, true, "DOCTYPE root")
	require.NoError(t, err)
	text := string(out)
	assert.Contains(t, text, `standalone="no"`)
	assert.Contains(t, text, "<!DOCTYPE root>")
	assert.Contains(t, text, "<name>a &lt; b</name>")
	assert.Contains(t, text, "<lyric><![CDATA[あ]]></lyric>")
	assert.Contains(t, text, `<empty id="1"/>`)

	back, err := readXML(out)
	require.NoError(t, err)
	name, _ := childText(back, "name")
	assert.Equal(t, "a < b", name)
	lyric, _ := childText(back, "lyric")
	assert.Equal(t, "あ", lyric)
}
