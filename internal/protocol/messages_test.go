package protocol

import (
	"errors"
	"testing"

	"peerquiz/internal/domain"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	data, err := Encode(TypeJoinRequest, &JoinRequest{Name: "Alice"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	env, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Type != TypeJoinRequest {
		t.Fatalf("expected joinRequest, got %s", env.Type)
	}

	var p JoinRequest
	if err := env.DecodePayload(&p); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if p.Name != "Alice" {
		t.Fatalf("expected Alice, got %q", p.Name)
	}
}

func TestDecodeRejectsMissingType(t *testing.T) {
	_, err := Decode([]byte(`{"payload":{}}`))
	if !errors.Is(err, domain.ErrMessageParse) {
		t.Fatalf("expected parse error, got %v", err)
	}
}

func TestDecodeRejectsMalformedJSON(t *testing.T) {
	_, err := Decode([]byte(`{"type":`))
	if !errors.Is(err, domain.ErrMessageParse) {
		t.Fatalf("expected parse error, got %v", err)
	}
}

func TestDecodePayloadValidates(t *testing.T) {
	env, err := Decode([]byte(`{"type":"joinRequest","payload":{}}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	var p JoinRequest
	if err := env.DecodePayload(&p); !errors.Is(err, domain.ErrMessageParse) {
		t.Fatalf("expected validation failure, got %v", err)
	}
}

func TestAnswerSubmittedNullAnswer(t *testing.T) {
	env, err := Decode([]byte(`{"type":"answerSubmitted","payload":{"questionIndex":2,"answer":null}}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	var p AnswerSubmitted
	if err := env.DecodePayload(&p); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if p.QuestionIndex != 2 || p.Answer != nil {
		t.Fatalf("expected index 2 with nil answer, got %+v", p)
	}
}

func TestAnswerSubmittedNegativeIndexRejected(t *testing.T) {
	env, err := Decode([]byte(`{"type":"answerSubmitted","payload":{"questionIndex":-1}}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	var p AnswerSubmitted
	if err := env.DecodePayload(&p); !errors.Is(err, domain.ErrMessageParse) {
		t.Fatalf("expected validation failure, got %v", err)
	}
}

func TestRoundResultRequiresMaps(t *testing.T) {
	env, err := Decode([]byte(`{"type":"roundResult","payload":{"questionIndex":0,"correctAnswer":"Paris"}}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	var p RoundResult
	if err := env.DecodePayload(&p); !errors.Is(err, domain.ErrMessageParse) {
		t.Fatalf("expected validation failure, got %v", err)
	}
}

func TestEncodeWithoutPayload(t *testing.T) {
	data, err := Encode(TypePing, nil)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	env, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Type != TypePing || len(env.Payload) != 0 {
		t.Fatalf("expected bare ping, got %+v", env)
	}
}
