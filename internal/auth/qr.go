package auth

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/skip2/go-qrcode"
	"go.mau.fi/whatsmeow"
	waLog "go.mau.fi/whatsmeow/util/log"
)

// pngName is the file each pairing code is mirrored to, for deployments
// where nobody watches the terminal.
const pngName = "pairing.png"

// QRHandler renders pairing codes to the terminal and mirrors each one as
// a PNG under a side-channel directory.
type QRHandler struct {
	dir string
	log waLog.Logger
}

// NewQRHandler creates the handler. An empty dir disables the PNG mirror.
func NewQRHandler(dir string, log waLog.Logger) *QRHandler {
	return &QRHandler{dir: dir, log: log.Sub("QR")}
}

// Watch consumes the pairing channel until the session pairs, the code
// times out, or ctx is canceled.
func (h *QRHandler) Watch(ctx context.Context, ch <-chan whatsmeow.QRChannelItem) error {
	defer h.removePNG()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case item, ok := <-ch:
			if !ok {
				return nil
			}
			switch item.Event {
			case "code":
				h.log.Infof("Scan the QR code below with WhatsApp (Linked Devices)")
				h.display(item.Code)
			case "timeout":
				h.log.Warnf("QR code timed out - restart to get a new one")
				return fmt.Errorf("qr pairing timed out")
			case "success":
				h.log.Infof("Successfully paired")
				return nil
			case "error":
				return fmt.Errorf("qr pairing failed: %w", item.Error)
			}
		}
	}
}

// display prints the code as terminal ASCII art and mirrors it to disk.
func (h *QRHandler) display(code string) {
	qr, err := qrcode.New(code, qrcode.Medium)
	if err != nil {
		h.log.Errorf("Failed to generate QR code: %v", err)
		fmt.Println("QR code content:", code)
		return
	}

	fmt.Println()
	fmt.Println(qr.ToSmallString(false))
	fmt.Println()

	h.savePNG(code)
}

func (h *QRHandler) savePNG(code string) {
	if h.dir == "" {
		return
	}
	path := filepath.Join(h.dir, pngName)
	if err := qrcode.WriteFile(code, qrcode.Medium, 256, path); err != nil {
		h.log.Warnf("Failed to save QR code to %s: %v", path, err)
		return
	}
	h.log.Infof("QR code saved to %s", path)
}

// removePNG drops the mirrored code once it can no longer be scanned.
func (h *QRHandler) removePNG() {
	if h.dir == "" {
		return
	}
	_ = os.Remove(filepath.Join(h.dir, pngName))
}
