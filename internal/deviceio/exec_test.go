package deviceio

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"testing"

	"github.com/nerrad567/laurabot-hal/internal/hal"
)

func TestExecDriver_Open(t *testing.T) {
	installed := map[string]bool{"laura-gesture": true}
	devices := map[string]bool{"/dev/video0": true}

	d := NewExecDriver()
	d.lookPath = func(file string) (string, error) {
		if installed[file] {
			return "/usr/local/bin/" + file, nil
		}
		return "", exec.ErrNotFound
	}
	d.stat = func(name string) (os.FileInfo, error) {
		if devices[name] {
			return nil, nil
		}
		return nil, os.ErrNotExist
	}

	tests := []struct {
		name    string
		address string
		wantErr bool
	}{
		{"installed with present device", "laura-gesture --device /dev/video0", false},
		{"missing device", "laura-gesture --device /dev/video3", true},
		{"helper not installed", "laura-stt --once", true},
		{"empty command", "   ", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := d.Open(context.Background(), hal.ClassVisual, hal.Candidate{Kind: KindExec, Address: tt.address})
			if (err != nil) != tt.wantErr {
				t.Fatalf("Open() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, ErrDeviceAbsent) {
				t.Errorf("Open() error = %v, want ErrDeviceAbsent", err)
			}
		})
	}
}

func TestExecDriver_WriteThenRead(t *testing.T) {
	if _, err := exec.LookPath("cat"); err != nil {
		t.Skip("cat not available")
	}
	d := NewExecDriver()
	ctx := context.Background()

	h, err := d.Open(ctx, hal.ClassOutput, hal.Candidate{Kind: KindExec, Address: "cat"})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	reply, err := Transact(ctx, d, h, Command{Op: OpSpeak, Text: "hello laura"})
	if err != nil {
		t.Fatalf("Transact() error = %v", err)
	}
	if reply.Text != "hello laura" {
		t.Errorf("reply.Text = %q, want echo of stdin", reply.Text)
	}

	// Nothing pending: Read runs the helper again with empty stdin.
	out, err := d.Read(ctx, h)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if len(out) != 0 {
		t.Errorf("Read() = %q, want empty", out)
	}

	if err := d.Close(h); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if _, err := d.Read(ctx, h); !errors.Is(err, hal.ErrInvalidHandle) {
		t.Errorf("Read() after Close error = %v, want ErrInvalidHandle", err)
	}
}

func TestExecDriver_HelperFailure(t *testing.T) {
	if _, err := exec.LookPath("false"); err != nil {
		t.Skip("false not available")
	}
	d := NewExecDriver()
	h, err := d.Open(context.Background(), hal.ClassInput, hal.Candidate{Kind: KindExec, Address: "false"})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if _, err := d.Read(context.Background(), h); err == nil {
		t.Error("Read() error = nil for failing helper")
	}
}
