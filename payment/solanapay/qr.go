package solanapay

import (
	qrcode "github.com/skip2/go-qrcode"
)

// QRCode renders uri as a size x size PNG.
func QRCode(uri string, size int) ([]byte, error) {
	if size <= 0 {
		size = 256
	}
	return qrcode.Encode(uri, qrcode.Medium, size)
}
