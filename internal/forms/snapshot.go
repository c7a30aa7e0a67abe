package forms

// SnapshotQuestion is the minimal per-question copy frozen alongside a
// submission: enough to interpret stored answers without the live
// document.
type SnapshotQuestion struct {
	ID   QuestionID   `json:"id"`
	Text string       `json:"text"`
	Type QuestionType `json:"type"`
}

// Snapshot freezes the identity and structure of the document version a
// submission was taken against. It is captured once at submission time
// and never re-derived, so later edits to the live document cannot
// retroactively change what a historical submission meant.
type Snapshot struct {
	Title     string             `json:"title"`
	Version   int64              `json:"version"`
	Questions []SnapshotQuestion `json:"questions"`
}

// Submission couples an answer map with the snapshot of the exact
// document version used.
type Submission struct {
	ID          string
	TenantID    TenantID
	DocumentID  DocumentID
	Snapshot    Snapshot
	Answers     AnswerSet
	Status      SubmissionStatus
	SubmittedAt int64
	SubmitterID string
}

// CaptureSnapshot builds the frozen copy for a submission against the
// given document version.
func CaptureSnapshot(document Document) Snapshot {
	questions := document.Questions()
	snapshot := Snapshot{
		Title:     document.Title,
		Version:   document.Version,
		Questions: make([]SnapshotQuestion, 0, len(questions)),
	}
	for _, question := range questions {
		snapshot.Questions = append(snapshot.Questions, SnapshotQuestion{
			ID:   question.ID,
			Text: question.Text,
			Type: question.Type,
		})
	}
	return snapshot
}
