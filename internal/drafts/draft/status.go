package draft

type Status string

const (
	StatusDraft      Status = "draft"
	StatusGenerating Status = "generating"
	StatusGenerated  Status = "generated"
	StatusEdited     Status = "edited"
	StatusError      Status = "error"
)

// ProjectStatus is the only place a status is derived. The generating and
// error markers take precedence; everything else follows from data.
func ProjectStatus(generating, hasError, hasBaseline, hasOverlay bool) Status {
	switch {
	case generating:
		return StatusGenerating
	case hasError:
		return StatusError
	case hasBaseline && hasOverlay:
		return StatusEdited
	case hasBaseline:
		return StatusGenerated
	default:
		return StatusDraft
	}
}

func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusGenerating, StatusGenerated, StatusEdited, StatusError:
		return true
	default:
		return false
	}
}
