package model

import "fmt"

// ImportWarning is a non-fatal record produced while decoding. The set of
// implementations is closed; consume it with a type switch.
type ImportWarning interface {
	importWarning()
}

// TempoNotFound means no tempo was present and the default was used.
type TempoNotFound struct{}

// TempoIgnoredInFile means a tempo event in another input file was dropped.
type TempoIgnoredInFile struct {
	File  string
	Tempo Tempo
}

// TempoIgnoredInTrack means a tempo event found in a non-master track was dropped.
type TempoIgnoredInTrack struct {
	Track int
	Tempo Tempo
}

// TempoIgnoredInPreMeasure means a tempo event inside the pre-roll was dropped.
type TempoIgnoredInPreMeasure struct {
	Tempo Tempo
}

// DefaultTempoFixed means a file-level default tempo was normalised.
type DefaultTempoFixed struct {
	OriginalBPM float64
}

// TimeSignatureNotFound means no meter was present and 4/4 was used.
type TimeSignatureNotFound struct{}

// TimeSignatureIgnoredInTrack means a meter in a non-master track was dropped.
type TimeSignatureIgnoredInTrack struct {
	Track         int
	TimeSignature TimeSignature
}

// TimeSignatureIgnoredInPreMeasure means a meter inside the pre-roll was dropped.
type TimeSignatureIgnoredInPreMeasure struct {
	TimeSignature TimeSignature
}

// IncompatibleFormatSerializationVersion means the file was written by a
// different version than the codec targets.
type IncompatibleFormatSerializationVersion struct {
	CurrentVersion string
	DataVersion    string
}

func (TempoNotFound) importWarning()                          {}
func (TempoIgnoredInFile) importWarning()                     {}
func (TempoIgnoredInTrack) importWarning()                    {}
func (TempoIgnoredInPreMeasure) importWarning()               {}
func (DefaultTempoFixed) importWarning()                      {}
func (TimeSignatureNotFound) importWarning()                  {}
func (TimeSignatureIgnoredInTrack) importWarning()            {}
func (TimeSignatureIgnoredInPreMeasure) importWarning()       {}
func (IncompatibleFormatSerializationVersion) importWarning() {}

// DescribeWarning renders a warning for users.
func DescribeWarning(w ImportWarning) string {
	switch w := w.(type) {
	case TempoNotFound:
		return "no tempo found, using 120 BPM"
	case TempoIgnoredInFile:
		return fmt.Sprintf("tempo %.2f at tick %d in %s ignored", w.Tempo.BPM, w.Tempo.TickPosition, w.File)
	case TempoIgnoredInTrack:
		return fmt.Sprintf("tempo %.2f at tick %d in track %d ignored", w.Tempo.BPM, w.Tempo.TickPosition, w.Track+1)
	case TempoIgnoredInPreMeasure:
		return fmt.Sprintf("tempo %.2f inside the pre-measure ignored", w.Tempo.BPM)
	case DefaultTempoFixed:
		return fmt.Sprintf("default tempo %.2f replaced by the first tempo event", w.OriginalBPM)
	case TimeSignatureNotFound:
		return "no time signature found, using 4/4"
	case TimeSignatureIgnoredInTrack:
		return fmt.Sprintf("time signature %d/%d in track %d ignored",
			w.TimeSignature.Numerator, w.TimeSignature.Denominator, w.Track+1)
	case TimeSignatureIgnoredInPreMeasure:
		return fmt.Sprintf("time signature %d/%d inside the pre-measure ignored",
			w.TimeSignature.Numerator, w.TimeSignature.Denominator)
	case IncompatibleFormatSerializationVersion:
		return fmt.Sprintf("file version %s differs from supported version %s", w.DataVersion, w.CurrentVersion)
	default:
		panic(fmt.Sprintf("model: unhandled import warning %T", w))
	}
}

// ExportNotification describes a lossy decision taken while encoding. The set
// of implementations is closed.
type ExportNotification interface {
	exportNotification()
}

// PhonemeResetRequiredVSQ asks the user to reset phonemes in VOCALOID2.
type PhonemeResetRequiredVSQ struct{}

// PhonemeResetRequiredV4 asks the user to reset phonemes in VOCALOID3/4.
type PhonemeResetRequiredV4 struct{}

// PhonemeResetRequiredV5 asks the user to reset phonemes in VOCALOID5.
type PhonemeResetRequiredV5 struct{}

// TimeSignatureIgnored means the target cannot store meter changes.
type TimeSignatureIgnored struct{}

// TempoChangeIgnored means the target keeps only the first tempo.
type TempoChangeIgnored struct{}

// PitchDataExported means the pitch curve was written and may need tuning.
type PitchDataExported struct{}

// DataOverLengthLimitIgnored means data beyond a format limit was dropped.
type DataOverLengthLimitIgnored struct{}

func (PhonemeResetRequiredVSQ) exportNotification()    {}
func (PhonemeResetRequiredV4) exportNotification()     {}
func (PhonemeResetRequiredV5) exportNotification()     {}
func (TimeSignatureIgnored) exportNotification()       {}
func (TempoChangeIgnored) exportNotification()         {}
func (PitchDataExported) exportNotification()          {}
func (DataOverLengthLimitIgnored) exportNotification() {}

// DescribeNotification renders a notification for users.
func DescribeNotification(n ExportNotification) string {
	switch n.(type) {
	case PhonemeResetRequiredVSQ:
		return "reset phonemes in VOCALOID2 after opening the file"
	case PhonemeResetRequiredV4:
		return "reset phonemes in VOCALOID3/4 after opening the file"
	case PhonemeResetRequiredV5:
		return "reset phonemes in VOCALOID5 after opening the file"
	case TimeSignatureIgnored:
		return "time signature changes were not exported"
	case TempoChangeIgnored:
		return "tempo changes were not exported, only the first tempo is kept"
	case PitchDataExported:
		return "pitch data was exported and may need manual adjustment"
	case DataOverLengthLimitIgnored:
		return "data beyond the format length limit was dropped"
	default:
		panic(fmt.Sprintf("model: unhandled export notification %T", n))
	}
}
