package protocol

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMessageTags(t *testing.T) {
	job := NewJob(3, "work")
	assert.True(t, job.HasSeq())
	assert.False(t, job.IsError())
	assert.False(t, job.IsBroadcast())

	failure := NewError(3, errors.New("boom"))
	assert.True(t, failure.IsError())
	assert.EqualValues(t, 3, failure.Seq)
	assert.Equal(t, "boom", failure.Error)

	fatal := NewError(NoSeq, errors.New("unit died"))
	assert.False(t, fatal.HasSeq())

	notice := NewClose()
	assert.True(t, notice.IsClose())
	assert.False(t, notice.IsBroadcast())

	broadcast := NewBroadcast("tune")
	assert.True(t, broadcast.IsBroadcast())
	assert.False(t, broadcast.HasSeq())
}

func TestCodecRoundTrip(t *testing.T) {
	codec := JSON()
	data, err := codec.Encode(NewResult(7, map[string]interface{}{"value": "ok"}))
	assert.Nil(t, err)
	clone, err := codec.Decode(data)
	assert.Nil(t, err)
	assert.EqualValues(t, 7, clone.Seq)
	assert.Equal(t, map[string]interface{}{"value": "ok"}, clone.Payload)
}

func TestNormalize(t *testing.T) {
	testCases := []struct {
		description string
		input       interface{}
		expectErr   bool
		expectSeq   int64
		expectType  string
	}{
		{
			description: "typed envelope passes through",
			input:       NewResult(5, "out"),
			expectSeq:   5,
		},
		{
			description: "map envelope with float seq",
			input:       map[string]interface{}{"seq": float64(9), "payload": "out"},
			expectSeq:   9,
		},
		{
			description: "map error envelope",
			input:       map[string]interface{}{"seq": 2, "type": TypeError, "message": "boom"},
			expectSeq:   2,
			expectType:  TypeError,
		},
		{
			description: "malformed seq still salvages nothing usable",
			input:       map[string]interface{}{"seq": "not-a-number"},
			expectErr:   true,
			expectSeq:   NoSeq,
		},
		{
			description: "malformed type keeps salvaged seq",
			input:       map[string]interface{}{"seq": 4, "type": 12},
			expectErr:   true,
			expectSeq:   4,
		},
		{
			description: "unsupported shape",
			input:       42,
			expectErr:   true,
		},
	}
	for _, testCase := range testCases {
		msg, err := Normalize(testCase.input)
		if testCase.expectErr {
			assert.NotNil(t, err, testCase.description)
			if msg != nil {
				assert.EqualValues(t, testCase.expectSeq, msg.Seq, testCase.description)
			}
			continue
		}
		if !assert.Nil(t, err, testCase.description) {
			continue
		}
		assert.EqualValues(t, testCase.expectSeq, msg.Seq, testCase.description)
		assert.Equal(t, testCase.expectType, msg.Type, testCase.description)
	}
}
