package ipc

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/justapithecus/leprechaun/iox"
	"github.com/justapithecus/leprechaun/types"
)

// EncodeSnapshot encodes snap as a framed msgpack payload, stamping the
// current frame version.
func EncodeSnapshot(snap *types.Snapshot) ([]byte, error) {
	out := *snap
	out.FrameVersion = types.StatusFrameVersion
	payload, err := msgpack.Marshal(&out)
	if err != nil {
		return nil, &FrameError{Kind: FrameErrorDecode, Msg: "failed to encode status snapshot", Err: err}
	}
	var buf bytes.Buffer
	if err := WriteFrame(&buf, payload); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeSnapshot decodes a payload produced by EncodeSnapshot.
func DecodeSnapshot(payload []byte) (*types.Snapshot, error) {
	var snap types.Snapshot
	if err := msgpack.Unmarshal(payload, &snap); err != nil {
		return nil, &FrameError{Kind: FrameErrorDecode, Msg: "failed to decode status snapshot", Err: err}
	}
	if snap.FrameVersion > types.StatusFrameVersion {
		return nil, &FrameError{
			Kind: FrameErrorVersion,
			Msg:  fmt.Sprintf("status frame version %d is newer than supported %d", snap.FrameVersion, types.StatusFrameVersion),
		}
	}
	return &snap, nil
}

// WriteStatusFile atomically replaces path with snap.
func WriteStatusFile(path string, snap *types.Snapshot) error {
	data, err := EncodeSnapshot(snap)
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create status dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".status-*.frame")
	if err != nil {
		return fmt.Errorf("failed to create status temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write status: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write status: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace status file: %w", err)
	}
	return nil
}

// ReadStatusFile reads the snapshot at path.
func ReadStatusFile(path string) (*types.Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer iox.DiscardClose(f)

	payload, err := NewFrameDecoder(f).ReadFrame()
	if err != nil {
		return nil, fmt.Errorf("invalid status file %s: %w", path, err)
	}
	return DecodeSnapshot(payload)
}
