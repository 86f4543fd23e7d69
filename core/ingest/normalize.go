package ingest

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"formintake/config"
	"formintake/core/store"
)

const choicesSeparator = ", "

// NormalizedEvent is one form submission flattened into typed records.
type NormalizedEvent struct {
	Token          string
	SubmittedAt    time.Time
	FormID         string
	ChecklistID    int64
	ChecklistName  *string
	EvaluationID   int64
	EvaluationType *string

	RespondentName   *string
	MandatoryComment *string
	OptionalComment  *string

	Questions []QuestionDef
	Answers   []AnswerRecord
}

type QuestionDef struct {
	ID    string
	Title string
	Type  string
	Ref   string
	Order int
}

type AnswerRecord struct {
	FieldID string
	Ref     string
	Type    string
	Value   *float64
	Text    *string
}

type webhookPayload struct {
	EventID      string        `json:"event_id"`
	EventType    string        `json:"event_type"`
	FormResponse *formResponse `json:"form_response"`
}

type formResponse struct {
	FormID      string                     `json:"form_id"`
	Token       string                     `json:"token"`
	LandedAt    string                     `json:"landed_at"`
	SubmittedAt string                     `json:"submitted_at"`
	Hidden      map[string]json.RawMessage `json:"hidden"`
	Definition  struct {
		ID     string     `json:"id"`
		Title  string     `json:"title"`
		Fields []fieldDef `json:"fields"`
	} `json:"definition"`
	Answers []json.RawMessage `json:"answers"`
}

type fieldDef struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Type  string `json:"type"`
	Ref   string `json:"ref"`
}

type rawAnswer struct {
	Field struct {
		ID   string `json:"id"`
		Type string `json:"type"`
		Ref  string `json:"ref"`
	} `json:"field"`
	Type        string   `json:"type"`
	Number      *float64 `json:"number"`
	Boolean     *bool    `json:"boolean"`
	Text        *string  `json:"text"`
	Email       *string  `json:"email"`
	URL         *string  `json:"url"`
	Date        *string  `json:"date"`
	PhoneNumber *string  `json:"phone_number"`
	FileURL     *string  `json:"file_url"`
	Choice      *struct {
		Label string `json:"label"`
		Other string `json:"other"`
	} `json:"choice"`
	Choices *struct {
		Labels []string `json:"labels"`
		Other  string   `json:"other"`
	} `json:"choices"`
}

type Normalizer struct {
	hidden config.HiddenFieldsConfig
	refs   config.RefMappingConfig
	now    func() time.Time
}

func NewNormalizer(cfg config.IngestConfig) *Normalizer {
	hidden := cfg.Hidden
	if hidden.ChecklistKey == "" {
		hidden.ChecklistKey = "checklist"
	}
	if hidden.EvaluationKey == "" {
		hidden.EvaluationKey = "avaliacao"
	}
	return &Normalizer{
		hidden: hidden,
		refs:   cfg.Refs,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Normalize validates raw and extracts its records. Any returned error is a
// validation *Error.
func (n *Normalizer) Normalize(raw []byte) (*NormalizedEvent, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, validationError(ErrorCodeEmptyBody, "request body is empty")
	}
	var payload webhookPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, newError(ErrValidation, ErrorCodeInvalidJSON, err)
	}
	resp := payload.FormResponse
	token := strings.TrimSpace(payload.EventID)
	if token == "" && resp != nil {
		token = strings.TrimSpace(resp.Token)
	}
	if token == "" {
		return nil, validationError(ErrorCodeMissingToken, "event_id is missing")
	}
	if resp == nil {
		return nil, validationError(ErrorCodeMissingResponse, "form_response is missing")
	}

	checklistID, err := hiddenInt(resp.Hidden, n.hidden.ChecklistKey, ErrorCodeMissingChecklist, ErrorCodeInvalidChecklist)
	if err != nil {
		return nil, err
	}
	evaluationID, err := hiddenInt(resp.Hidden, n.hidden.EvaluationKey, ErrorCodeMissingEvaluation, ErrorCodeInvalidEvaluation)
	if err != nil {
		return nil, err
	}

	ev := &NormalizedEvent{
		Token:          token,
		SubmittedAt:    n.submittedAt(resp),
		FormID:         strings.TrimSpace(resp.FormID),
		ChecklistID:    checklistID,
		ChecklistName:  hiddenString(resp.Hidden, n.hidden.ChecklistNameKey),
		EvaluationID:   evaluationID,
		EvaluationType: hiddenString(resp.Hidden, n.hidden.EvaluationTypeKey),
	}
	for i, f := range resp.Definition.Fields {
		ev.Questions = append(ev.Questions, QuestionDef{
			ID:    f.ID,
			Title: f.Title,
			Type:  f.Type,
			Ref:   f.Ref,
			Order: i,
		})
	}
	for _, rawAns := range resp.Answers {
		rec, err := extractAnswer(rawAns)
		if err != nil {
			return nil, newError(ErrValidation, ErrorCodeInvalidJSON, err)
		}
		ev.Answers = append(ev.Answers, rec)
		n.applyRefMapping(ev, rec)
	}
	return ev, nil
}

func (n *Normalizer) submittedAt(resp *formResponse) time.Time {
	for _, raw := range []string{resp.SubmittedAt, resp.LandedAt} {
		if ts, err := time.Parse(time.RFC3339, strings.TrimSpace(raw)); err == nil {
			return ts.UTC()
		}
	}
	return n.now()
}

func (n *Normalizer) applyRefMapping(ev *NormalizedEvent, rec AnswerRecord) {
	if rec.Ref == "" || rec.Text == nil {
		return
	}
	switch rec.Ref {
	case n.refs.RespondentName:
		ev.RespondentName = rec.Text
	case n.refs.MandatoryComment:
		ev.MandatoryComment = rec.Text
	case n.refs.OptionalComment:
		ev.OptionalComment = rec.Text
	}
}

func extractAnswer(raw json.RawMessage) (AnswerRecord, error) {
	var a rawAnswer
	if err := json.Unmarshal(raw, &a); err != nil {
		return AnswerRecord{}, err
	}
	rec := AnswerRecord{
		FieldID: a.Field.ID,
		Ref:     a.Field.Ref,
		Type:    a.Type,
	}
	if rec.Type == "" {
		rec.Type = a.Field.Type
	}
	switch {
	case a.Number != nil:
		v := *a.Number
		rec.Value = &v
	case a.Boolean != nil:
		v := 0.0
		if *a.Boolean {
			v = 1
		}
		rec.Value = &v
	case firstString(a.Text, a.Email, a.URL, a.Date, a.PhoneNumber, a.FileURL) != nil:
		rec.Text = firstString(a.Text, a.Email, a.URL, a.Date, a.PhoneNumber, a.FileURL)
	case a.Choice != nil:
		label := a.Choice.Label
		if label == "" {
			label = a.Choice.Other
		}
		rec.Text = &label
	case a.Choices != nil:
		labels := append([]string{}, a.Choices.Labels...)
		if a.Choices.Other != "" {
			labels = append(labels, a.Choices.Other)
		}
		joined := strings.Join(labels, choicesSeparator)
		rec.Text = &joined
	default:
		fallback, err := stringifyAnswer(raw, rec.Type)
		if err != nil {
			return AnswerRecord{}, err
		}
		rec.Text = &fallback
	}
	return rec, nil
}

func firstString(values ...*string) *string {
	for _, v := range values {
		if v != nil {
			val := *v
			return &val
		}
	}
	return nil
}

// stringifyAnswer renders an unrecognized answer as compact JSON: the value
// under its declared type key if present, otherwise the answer minus field.
func stringifyAnswer(raw json.RawMessage, typ string) (string, error) {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return "", err
	}
	if v, ok := m[typ]; ok && typ != "" && typ != "type" && typ != "field" {
		return compactJSON(v), nil
	}
	delete(m, "field")
	out, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func compactJSON(v json.RawMessage) string {
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return s
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, v); err != nil {
		return string(v)
	}
	return buf.String()
}

func hiddenInt(hidden map[string]json.RawMessage, key, missingCode, invalidCode string) (int64, error) {
	raw, ok := hidden[key]
	if !ok || isJSONNull(raw) {
		return 0, validationError(missingCode, "hidden field "+key+" is missing")
	}
	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		text = string(bytes.TrimSpace(raw))
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, validationError(missingCode, "hidden field "+key+" is missing")
	}
	v, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return 0, validationError(invalidCode, "hidden field "+key+" is not an integer")
	}
	return v, nil
}

func hiddenString(hidden map[string]json.RawMessage, key string) *string {
	if key == "" {
		return nil
	}
	raw, ok := hidden[key]
	if !ok || isJSONNull(raw) {
		return nil
	}
	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		text = string(bytes.TrimSpace(raw))
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	return &text
}

func isJSONNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// Batch maps the event onto store records.
func (ev *NormalizedEvent) Batch() *store.IntakeBatch {
	batch := &store.IntakeBatch{
		Checklist: store.Checklist{ID: ev.ChecklistID, Name: ev.ChecklistName},
		Evaluation: store.Evaluation{
			ID:          ev.EvaluationID,
			ChecklistID: ev.ChecklistID,
			Type:        ev.EvaluationType,
			Status:      store.EvaluationStatusInProgress,
		},
		Deliverable: store.Deliverable{
			ID:               ev.Token,
			EvaluationID:     ev.EvaluationID,
			ChecklistID:      ev.ChecklistID,
			ReceivedAt:       ev.SubmittedAt,
			FormID:           ev.FormID,
			RespondentName:   ev.RespondentName,
			MandatoryComment: ev.MandatoryComment,
			OptionalComment:  ev.OptionalComment,
		},
	}
	for _, q := range ev.Questions {
		batch.Questions = append(batch.Questions, store.Question{
			ID:           q.ID,
			EvaluationID: ev.EvaluationID,
			Text:         q.Title,
			Type:         q.Type,
			Order:        q.Order,
			Ref:          optional(q.Ref),
		})
	}
	for _, a := range ev.Answers {
		batch.Answers = append(batch.Answers, store.Answer{
			DeliverableID: ev.Token,
			QuestionID:    a.FieldID,
			EvaluationID:  ev.EvaluationID,
			Value:         a.Value,
			Text:          a.Text,
			Type:          a.Type,
			Ref:           optional(a.Ref),
		})
	}
	return batch
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
