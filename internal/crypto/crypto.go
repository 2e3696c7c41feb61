// Package crypto implements an AES-256-CBC stream codec byte-compatible
// with the archive encryptor's documented invocation:
//
//	openssl enc -aes-256-cbc -md sha512 -pbkdf2 -iter 100000 -pass file:...
//
// Archives written by either side decrypt with the other, so the
// built-in path is a drop-in for hosts without the openssl binary.
package crypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha512"
	"crypto/subtle"
	"io"
	"os"
	"strings"

	"golang.org/x/crypto/pbkdf2"

	apperrors "github.com/spgill/sbackup/internal/errors"
)

const (
	saltMagic  = "Salted__"
	saltSize   = 8
	keySize    = 32 // AES-256
	ivSize     = aes.BlockSize
	Iterations = 100000
)

// OpenSSLArgs is the encryptor's flag contract, reproduced verbatim for
// the external pipeline stage. decrypt selects -d instead of -e.
func OpenSSLArgs(passwordFile string, decrypt bool) []string {
	mode := "-e"
	if decrypt {
		mode = "-d"
	}
	return []string{
		"enc", "-aes-256-cbc",
		"-md", "sha512",
		"-pbkdf2",
		"-iter", "100000",
		"-pass", "file:" + passwordFile,
		mode,
	}
}

// ReadPasswordFile loads a password the way openssl's file: source does:
// the first line of the file, without its newline.
func ReadPasswordFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.TypeSecurity,
			"cannot read archive password file", "")
	}
	pass, _, _ := strings.Cut(string(data), "\n")
	return strings.TrimSuffix(pass, "\r"), nil
}

func deriveKeyIV(password string, salt []byte) (key, iv []byte) {
	material := pbkdf2.Key([]byte(password), salt, Iterations, keySize+ivSize, sha512.New)
	return material[:keySize], material[keySize:]
}

// EncryptWriter produces an openssl-enc-compatible ciphertext stream.
// Close flushes the final padded block and must be called.
type EncryptWriter struct {
	w    io.Writer
	mode cipher.BlockMode
	buf  []byte
	err  error
}

func NewEncryptWriter(w io.Writer, password string) (*EncryptWriter, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}

	key, iv := deriveKeyIV(password, salt)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	if _, err := w.Write(append([]byte(saltMagic), salt...)); err != nil {
		return nil, err
	}

	return &EncryptWriter{
		w:    w,
		mode: cipher.NewCBCEncrypter(block, iv),
	}, nil
}

func (ew *EncryptWriter) Write(p []byte) (int, error) {
	if ew.err != nil {
		return 0, ew.err
	}
	ew.buf = append(ew.buf, p...)

	full := len(ew.buf) / aes.BlockSize * aes.BlockSize
	if full > 0 {
		ew.mode.CryptBlocks(ew.buf[:full], ew.buf[:full])
		if _, err := ew.w.Write(ew.buf[:full]); err != nil {
			ew.err = err
			return 0, err
		}
		ew.buf = append(ew.buf[:0], ew.buf[full:]...)
	}
	return len(p), nil
}

// Close writes the PKCS#7 padded final block.
func (ew *EncryptWriter) Close() error {
	if ew.err != nil {
		return ew.err
	}
	pad := aes.BlockSize - len(ew.buf)%aes.BlockSize
	for i := 0; i < pad; i++ {
		ew.buf = append(ew.buf, byte(pad))
	}
	ew.mode.CryptBlocks(ew.buf, ew.buf)
	_, err := ew.w.Write(ew.buf)
	ew.buf = nil
	ew.err = io.ErrClosedPipe
	return err
}

// DecryptReader decrypts an openssl-enc-compatible ciphertext stream.
type DecryptReader struct {
	r    io.Reader
	mode cipher.BlockMode
	in   []byte
	out  bytes.Buffer
	eof  bool
}

func NewDecryptReader(r io.Reader, password string) (*DecryptReader, error) {
	header := make([]byte, len(saltMagic)+saltSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, apperrors.Wrap(err, apperrors.TypeSecurity,
			"input is too short to be an encrypted archive", "")
	}
	if subtle.ConstantTimeCompare(header[:len(saltMagic)], []byte(saltMagic)) != 1 {
		return nil, apperrors.New(apperrors.TypeSecurity,
			"input does not carry an openssl salt header",
			"was this archive produced with encryption enabled?")
	}

	key, iv := deriveKeyIV(password, header[len(saltMagic):])
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	return &DecryptReader{
		r:    r,
		mode: cipher.NewCBCDecrypter(block, iv),
	}, nil
}

func (dr *DecryptReader) Read(p []byte) (int, error) {
	// The final plaintext block carries padding, so one decrypted block
	// is always held back until the underlying stream hits EOF.
	for !dr.eof && dr.out.Len() <= aes.BlockSize {
		if err := dr.fill(); err != nil {
			return 0, err
		}
	}

	avail := dr.out.Len()
	if !dr.eof {
		avail -= aes.BlockSize
	}
	if avail <= 0 {
		if dr.eof {
			return 0, io.EOF
		}
		return 0, nil
	}
	if len(p) > avail {
		p = p[:avail]
	}
	return dr.out.Read(p)
}

func (dr *DecryptReader) fill() error {
	chunk := make([]byte, 32*1024)
	n, err := dr.r.Read(chunk)
	if n > 0 {
		dr.in = append(dr.in, chunk[:n]...)
		full := len(dr.in) / aes.BlockSize * aes.BlockSize
		if full > 0 {
			dr.mode.CryptBlocks(dr.in[:full], dr.in[:full])
			dr.out.Write(dr.in[:full])
			dr.in = append(dr.in[:0], dr.in[full:]...)
		}
	}
	if err == io.EOF {
		dr.eof = true
		if len(dr.in) != 0 {
			return apperrors.New(apperrors.TypeSecurity,
				"encrypted archive is truncated", "")
		}
		return dr.stripPadding()
	}
	return err
}

func (dr *DecryptReader) stripPadding() error {
	data := dr.out.Bytes()
	if len(data) == 0 || len(data)%aes.BlockSize != 0 {
		return apperrors.New(apperrors.TypeSecurity, "bad decrypt", "wrong password?")
	}
	pad := int(data[len(data)-1])
	if pad < 1 || pad > aes.BlockSize {
		return apperrors.New(apperrors.TypeSecurity, "bad decrypt", "wrong password?")
	}
	for _, b := range data[len(data)-pad:] {
		if int(b) != pad {
			return apperrors.New(apperrors.TypeSecurity, "bad decrypt", "wrong password?")
		}
	}
	dr.out.Truncate(len(data) - pad)
	return nil
}
