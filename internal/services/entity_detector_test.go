package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lllllllleong/lettercheck/internal/models"
)

func newDetector(t *testing.T, reply string, err error) (*EntityDetector, *scriptedModel) {
	t.Helper()
	model := &scriptedModel{reply: reply, err: err}
	d, nerr := NewEntityDetector(model, EntityDetectorConfig{}, quietLogger())
	require.NoError(t, nerr)
	return d, model
}

func TestDetect_RedactsEntitiesAboveThreshold(t *testing.T) {
	text := "Call Tanaka at 03-1234-5678 today"
	d, model := newDetector(t, `{"entities":[
		{"type":"PERSON","text":"Tanaka","start":5,"end":11,"score":0.95},
		{"type":"PHONE_NUMBER","text":"03-1234-5678","start":15,"end":27,"score":0.9},
		{"type":"DATE_TIME","text":"today","start":28,"end":33,"score":0.4}
	]}`, nil)

	res := d.Detect(context.Background(), text)

	assert.Equal(t, 1, model.calls())
	assert.Contains(t, model.prompts[0], text)
	assert.Equal(t, "Call <PERSON> at <PHONE_NUMBER> today", res.RedactedText)
	require.Len(t, res.Entities, 2)
	assert.Equal(t, models.EntityPerson, res.Entities[0].Type)
	assert.Equal(t, models.EntityPhone, res.Entities[1].Type)
	assert.Equal(t, map[models.EntityType]int{models.EntityPerson: 1, models.EntityPhone: 1}, res.CountsByType)
}

func TestDetect_ThresholdIsInclusive(t *testing.T) {
	d, _ := newDetector(t, `{"entities":[{"type":"PERSON","text":"Sato","score":0.7}]}`, nil)

	res := d.Detect(context.Background(), "Sato")

	assert.Equal(t, "<PERSON>", res.RedactedText)
}

func TestDetect_ReanchorsWrongOffsets(t *testing.T) {
	d, _ := newDetector(t, `{"entities":[{"type":"PERSON","text":"Tanaka","start":0,"end":6,"score":0.9}]}`, nil)

	res := d.Detect(context.Background(), "Dear Tanaka")

	require.Len(t, res.Entities, 1)
	assert.Equal(t, 5, res.Entities[0].Start)
	assert.Equal(t, 11, res.Entities[0].End)
	assert.Equal(t, "Dear <PERSON>", res.RedactedText)
}

func TestDetect_RepeatedNameClaimsEachOccurrence(t *testing.T) {
	d, _ := newDetector(t, `{"entities":[
		{"type":"PERSON","text":"Tanaka","score":0.9},
		{"type":"PERSON","text":"Tanaka","score":0.9}
	]}`, nil)

	res := d.Detect(context.Background(), "Tanaka met Tanaka")

	assert.Equal(t, "<PERSON> met <PERSON>", res.RedactedText)
	assert.Equal(t, 2, res.CountsByType[models.EntityPerson])
}

func TestDetect_OverlapKeepsLongerAtEqualScore(t *testing.T) {
	d, _ := newDetector(t, `{"entities":[
		{"type":"PERSON","text":"Taro","score":0.9},
		{"type":"PERSON","text":"Tanaka Taro","score":0.9}
	]}`, nil)

	res := d.Detect(context.Background(), "Mr. Tanaka Taro")

	assert.Equal(t, "Mr. <PERSON>", res.RedactedText)
	require.Len(t, res.Entities, 1)
	assert.Equal(t, "Tanaka Taro", res.Entities[0].Text)
}

func TestDetect_ResultIndependentOfReplyOrder(t *testing.T) {
	text := "Tanaka Taro, tanaka@example.com, Tokyo"
	a, _ := newDetector(t, `{"entities":[
		{"type":"PERSON","text":"Tanaka Taro","score":0.9},
		{"type":"EMAIL","text":"tanaka@example.com","score":0.85},
		{"type":"ADDRESS","text":"Tokyo","score":0.8}
	]}`, nil)
	b, _ := newDetector(t, `{"entities":[
		{"type":"ADDRESS","text":"Tokyo","score":0.8},
		{"type":"EMAIL","text":"tanaka@example.com","score":0.85},
		{"type":"PERSON","text":"Tanaka Taro","score":0.9}
	]}`, nil)

	ra := a.Detect(context.Background(), text)
	rb := b.Detect(context.Background(), text)

	assert.Equal(t, ra, rb)
	assert.Equal(t, "<PERSON>, <EMAIL>, <ADDRESS>", ra.RedactedText)
}

func TestDetect_LabelsAreNormalized(t *testing.T) {
	d, _ := newDetector(t, `{"entities":[
		{"type":"location","text":"Osaka","score":0.9},
		{"type":"FAVOURITE_COLOUR","text":"blue","score":0.99}
	]}`, nil)

	res := d.Detect(context.Background(), "Osaka is blue")

	assert.Equal(t, "<ADDRESS> is blue", res.RedactedText)
	assert.Equal(t, map[models.EntityType]int{models.EntityAddress: 1}, res.CountsByType)
}

func TestDetect_CountsSumToEntities(t *testing.T) {
	d, _ := newDetector(t, `{"entities":[
		{"type":"PERSON","text":"Ito","score":0.9},
		{"type":"PERSON","text":"Abe","score":0.9},
		{"type":"ORGANIZATION","text":"Acme","score":0.8},
		{"type":"PERSON","text":"Nobody","score":0.9}
	]}`, nil)

	res := d.Detect(context.Background(), "Ito and Abe work at Acme")

	total := 0
	for _, n := range res.CountsByType {
		total += n
	}
	assert.Equal(t, len(res.Entities), total)
	assert.Len(t, res.Entities, 3)
}

func TestDetect_FailuresLeaveTextUnchanged(t *testing.T) {
	text := "Dear Tanaka"
	cases := map[string]*EntityDetector{}
	cases["model error"], _ = newDetector(t, "", errors.New("quota exceeded"))
	cases["malformed reply"], _ = newDetector(t, "sorry, I can't", nil)
	cases["schema mismatch"], _ = newDetector(t, `{"entities":"none"}`, nil)

	for name, d := range cases {
		t.Run(name, func(t *testing.T) {
			res := d.Detect(context.Background(), text)
			assert.Equal(t, text, res.RedactedText)
			assert.Empty(t, res.Entities)
			assert.NotNil(t, res.CountsByType)
		})
	}
}

func TestDetect_FencedReplyIsAccepted(t *testing.T) {
	d, _ := newDetector(t, "```json\n{\"entities\":[{\"type\":\"PERSON\",\"text\":\"Mori\",\"score\":0.9}]}\n```", nil)

	res := d.Detect(context.Background(), "Hello Mori")

	assert.Equal(t, "Hello <PERSON>", res.RedactedText)
}

func TestDetect_BlankTextSkipsModel(t *testing.T) {
	d, model := newDetector(t, `{"entities":[]}`, nil)

	res := d.Detect(context.Background(), "  \n")

	assert.Equal(t, 0, model.calls())
	assert.Equal(t, "  \n", res.RedactedText)
}

func TestNewEntityDetector_RequiresModel(t *testing.T) {
	_, err := NewEntityDetector(nil, EntityDetectorConfig{}, nil)
	assert.Error(t, err)
}
