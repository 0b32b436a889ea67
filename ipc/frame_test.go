package ipc

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/justapithecus/leprechaun/types"
)

func testSnapshot() *types.Snapshot {
	rate := 1234.5
	paused := time.Date(2021, 9, 1, 13, 0, 0, 0, time.UTC)
	return &types.Snapshot{
		Version:     types.Version,
		SessionID:   "session-1",
		Host:        "rig",
		PID:         4242,
		StartedAt:   time.Date(2021, 9, 1, 12, 0, 0, 0, time.UTC),
		UpdatedAt:   time.Date(2021, 9, 1, 12, 5, 0, 0, time.UTC),
		PausedUntil: &paused,
		Stacks: []types.StackStatus{
			{Name: "cpu", Active: "night", Miners: []types.MinerStatus{
				{Name: "night", Currency: "XMR", Backend: "xmrig", Enabled: true, Allowed: true, Running: true, Active: true, Hashrate: &rate, PID: 99},
				{Name: "idle", Currency: "XMR", Backend: "xmrig", Enabled: true, Broken: true},
			}},
			{Name: "gpu", Miners: []types.MinerStatus{}},
		},
	}
}

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	for _, p := range [][]byte{[]byte("one"), {}, []byte("three")} {
		if err := WriteFrame(&buf, p); err != nil {
			t.Fatalf("WriteFrame: %v", err)
		}
	}
	dec := NewFrameDecoder(&buf)
	for _, want := range []string{"one", "", "three"} {
		got, err := dec.ReadFrame()
		if err != nil {
			t.Fatalf("ReadFrame: %v", err)
		}
		if string(got) != want {
			t.Errorf("payload = %q, want %q", got, want)
		}
	}
	if _, err := dec.ReadFrame(); err != io.EOF {
		t.Errorf("expected io.EOF, got %v", err)
	}
}

func TestFrameDecoder_Errors(t *testing.T) {
	_, err := NewFrameDecoder(bytes.NewReader([]byte{0, 0})).ReadFrame()
	if !IsFrameError(err, FrameErrorPartial) {
		t.Errorf("short prefix: %v", err)
	}

	var frame [LengthPrefixSize]byte
	binary.BigEndian.PutUint32(frame[:], 10)
	_, err = NewFrameDecoder(bytes.NewReader(append(frame[:], 'x'))).ReadFrame()
	if !IsFrameError(err, FrameErrorPartial) {
		t.Errorf("short payload: %v", err)
	}

	binary.BigEndian.PutUint32(frame[:], MaxPayloadSize+1)
	_, err = NewFrameDecoder(bytes.NewReader(frame[:])).ReadFrame()
	if !IsFrameError(err, FrameErrorTooLarge) {
		t.Errorf("oversized: %v", err)
	}

	if err := WriteFrame(io.Discard, make([]byte, MaxPayloadSize+1)); !IsFrameError(err, FrameErrorTooLarge) {
		t.Errorf("oversized write: %v", err)
	}
}

func TestSnapshot_RoundTrip(t *testing.T) {
	data, err := EncodeSnapshot(testSnapshot())
	if err != nil {
		t.Fatalf("EncodeSnapshot: %v", err)
	}
	payload, err := NewFrameDecoder(bytes.NewReader(data)).ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	snap, err := DecodeSnapshot(payload)
	if err != nil {
		t.Fatalf("DecodeSnapshot: %v", err)
	}

	if snap.FrameVersion != types.StatusFrameVersion {
		t.Errorf("frame version = %d", snap.FrameVersion)
	}
	if snap.Host != "rig" || snap.PID != 4242 || !snap.UpdatedAt.Equal(testSnapshot().UpdatedAt) {
		t.Errorf("header = %+v", snap)
	}
	if snap.PausedUntil == nil || !snap.PausedUntil.Equal(*testSnapshot().PausedUntil) {
		t.Errorf("paused until = %v", snap.PausedUntil)
	}
	cpu := snap.Stacks[0]
	if cpu.Active != "night" || len(cpu.Miners) != 2 || cpu.Miners[0].Hashrate == nil || *cpu.Miners[0].Hashrate != 1234.5 {
		t.Errorf("cpu stack = %+v", cpu)
	}
	if !cpu.Miners[1].Broken || cpu.Miners[1].Hashrate != nil {
		t.Errorf("idle miner = %+v", cpu.Miners[1])
	}
}

func TestDecodeSnapshot_NewerVersion(t *testing.T) {
	snap := testSnapshot()
	snap.FrameVersion = types.StatusFrameVersion + 1
	payload, err := msgpack.Marshal(snap)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := DecodeSnapshot(payload); !IsFrameError(err, FrameErrorVersion) {
		t.Errorf("expected version error, got %v", err)
	}
	if _, err := DecodeSnapshot([]byte{0xc1}); !IsFrameError(err, FrameErrorDecode) {
		t.Errorf("expected decode error, got %v", err)
	}
}

func TestStatusFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "status.frame")
	if err := WriteStatusFile(path, testSnapshot()); err != nil {
		t.Fatalf("WriteStatusFile: %v", err)
	}
	updated := testSnapshot()
	updated.Stacks[0].Active = "idle"
	if err := WriteStatusFile(path, updated); err != nil {
		t.Fatalf("WriteStatusFile: %v", err)
	}

	snap, err := ReadStatusFile(path)
	if err != nil {
		t.Fatalf("ReadStatusFile: %v", err)
	}
	if snap.Stacks[0].Active != "idle" {
		t.Errorf("active = %q, want idle", snap.Stacks[0].Active)
	}

	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("temp files left behind: %v", entries)
	}

	if _, err := ReadStatusFile(filepath.Join(t.TempDir(), "missing")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing file err = %v", err)
	}
}
