package voice

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/voidworks/venting-vault/backend/internal/model/chat"
	"github.com/voidworks/venting-vault/backend/internal/service/recorder"
)

func boolPtr(v bool) *bool { return &v }

func TestApplyConfigGrantsPermission(t *testing.T) {
	mic := &wsMicrophone{}

	if granted, _ := mic.RequestPermission(context.Background()); granted {
		t.Fatal("permission must start denied")
	}

	mic.applyConfig(ConfigMessage{Permission: boolPtr(true), Format: "m4a"})

	if granted, _ := mic.RequestPermission(context.Background()); !granted {
		t.Fatal("permission not applied")
	}
	if mic.format != "m4a" {
		t.Fatalf("format not applied: %q", mic.format)
	}
}

func TestMicrophoneBuffersChunksAndMaterializes(t *testing.T) {
	mic := &wsMicrophone{}
	mic.applyConfig(ConfigMessage{Permission: boolPtr(true), Format: "m4a"})

	if err := mic.Start(context.Background()); err != nil {
		t.Fatalf("Start err: %v", err)
	}
	mic.writeChunk([]byte{0x01, 0x02}, "")
	mic.writeChunk([]byte{0x03}, "")

	artifact, err := mic.Stop(context.Background())
	if err != nil {
		t.Fatalf("Stop err: %v", err)
	}
	t.Cleanup(func() { os.Remove(artifact.Ref) })

	if artifact.MIME != "audio/mp4" {
		t.Fatalf("unexpected mime: %q", artifact.MIME)
	}
	if len(artifact.Data) != 3 {
		t.Fatalf("unexpected data length: %d", len(artifact.Data))
	}

	written, err := os.ReadFile(artifact.Ref)
	if err != nil {
		t.Fatalf("artifact file not written: %v", err)
	}
	if len(written) != 3 {
		t.Fatalf("unexpected file length: %d", len(written))
	}
}

func TestMicrophoneStartResetsBuffer(t *testing.T) {
	mic := &wsMicrophone{}
	mic.writeChunk([]byte{0xFF}, "wav")

	if err := mic.Start(context.Background()); err != nil {
		t.Fatalf("Start err: %v", err)
	}
	artifact, err := mic.Stop(context.Background())
	if err != nil {
		t.Fatalf("Stop err: %v", err)
	}
	if len(artifact.Data) != 0 {
		t.Fatalf("stale chunks survived Start: %d bytes", len(artifact.Data))
	}
}

type captureSink struct {
	artifacts []chat.VoiceArtifact
}

func (s *captureSink) SubmitVoice(_ context.Context, artifact chat.VoiceArtifact) ([]chat.Message, error) {
	s.artifacts = append(s.artifacts, artifact)
	return []chat.Message{{ID: "u", Kind: chat.KindVoice}, {ID: "a"}}, nil
}

func TestSessionOverWebsocketMicrophone(t *testing.T) {
	mic := &wsMicrophone{}
	sink := &captureSink{}
	session := recorder.NewSession(mic, sink)

	// Denied until the client grants permission in its config message.
	if err := session.Start(context.Background()); !errors.Is(err, recorder.ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}

	mic.applyConfig(ConfigMessage{Permission: boolPtr(true), Format: "m4a"})
	if err := session.Start(context.Background()); err != nil {
		t.Fatalf("Start err: %v", err)
	}
	mic.writeChunk([]byte{0x01, 0x02, 0x03}, "")

	// The session clock needs a nonzero elapsed time to accept the send.
	time.Sleep(1100 * time.Millisecond)

	msgs, err := session.Send(context.Background())
	if err != nil {
		t.Fatalf("Send err: %v", err)
	}
	if len(sink.artifacts) != 1 {
		t.Fatalf("expected one submission, got %d", len(sink.artifacts))
	}
	artifact := sink.artifacts[0]
	t.Cleanup(func() { os.Remove(artifact.Ref) })

	if artifact.DurationSeconds < 1 {
		t.Fatalf("unexpected duration: %d", artifact.DurationSeconds)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected sink result passthrough, got %d", len(msgs))
	}
}

func TestMimeForFormat(t *testing.T) {
	cases := map[string]string{
		"m4a":  "audio/mp4",
		"mp4":  "audio/mp4",
		"wav":  "audio/wav",
		"webm": "audio/webm",
		"ogg":  "application/octet-stream",
	}
	for format, want := range cases {
		if got := mimeForFormat(format); got != want {
			t.Fatalf("mimeForFormat(%q) = %q, want %q", format, got, want)
		}
	}
}
