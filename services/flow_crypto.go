package services

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
)

// gcmTagSize is the length of the authentication tag appended to Flow ciphertexts
const gcmTagSize = 16

// IVMode selects how the response IV is derived from the request IV
type IVMode string

const (
	// IVModeFlip inverts every bit of the request IV
	IVModeFlip IVMode = "flip"
	// IVModeReverse reverses the byte order of the request IV
	IVModeReverse IVMode = "reverse"
)

// ParseIVMode maps a config value to an IVMode, defaulting to flip
func ParseIVMode(value string) IVMode {
	if strings.EqualFold(strings.TrimSpace(value), string(IVModeReverse)) {
		return IVModeReverse
	}
	return IVModeFlip
}

var (
	// ErrFlowKeyMissing means no private key is configured for encrypted Flow requests
	ErrFlowKeyMissing = errors.New("flow private key is not configured")
	// ErrCiphertextTooShort means the payload cannot even hold a GCM tag
	ErrCiphertextTooShort = errors.New("flow ciphertext shorter than authentication tag")
)

// FlowError is a Flow endpoint failure that maps to an HTTP status
type FlowError struct {
	Status  int
	Code    string
	Message string
	Err     error
}

func (e *FlowError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *FlowError) Unwrap() error {
	return e.Err
}

func newFlowError(status int, code, message string, err error) *FlowError {
	return &FlowError{Status: status, Code: code, Message: message, Err: err}
}

// DecryptAESKey recovers the per-request AES key with RSA-OAEP (SHA-256, no label)
func DecryptAESKey(encryptedKeyB64 string, privateKey *rsa.PrivateKey) ([]byte, error) {
	if privateKey == nil {
		return nil, newFlowError(http.StatusInternalServerError, "FLOW_KEY_MISSING", "flow private key is not configured", ErrFlowKeyMissing)
	}
	encryptedKey, err := base64.StdEncoding.DecodeString(encryptedKeyB64)
	if err != nil {
		return nil, newFlowError(http.StatusBadRequest, "INVALID_AES_KEY", "encrypted_aes_key is not valid base64", err)
	}
	key, err := rsa.DecryptOAEP(sha256.New(), nil, privateKey, encryptedKey, nil)
	if err != nil {
		return nil, newFlowError(http.StatusMisdirectedRequest, "AES_KEY_DECRYPT_FAILED", "failed to decrypt AES key", err)
	}
	return key, nil
}

// DecryptFlowData opens an AES-GCM Flow payload whose last 16 bytes are the tag
func DecryptFlowData(cipherB64 string, key []byte, ivB64 string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(cipherB64)
	if err != nil {
		return nil, newFlowError(http.StatusBadRequest, "INVALID_FLOW_DATA", "encrypted_flow_data is not valid base64", err)
	}
	iv, err := base64.StdEncoding.DecodeString(ivB64)
	if err != nil || len(iv) == 0 {
		return nil, newFlowError(http.StatusBadRequest, "INVALID_IV", "initial_vector is not valid base64", err)
	}
	if len(data) < gcmTagSize {
		return nil, newFlowError(http.StatusMisdirectedRequest, "FLOW_DATA_TRUNCATED", "encrypted flow data is truncated", ErrCiphertextTooShort)
	}

	gcm, err := newGCM(key, len(iv))
	if err != nil {
		return nil, newFlowError(http.StatusMisdirectedRequest, "INVALID_AES_KEY", "AES key rejected", err)
	}
	plain, err := gcm.Open(nil, iv, data, nil)
	if err != nil {
		return nil, newFlowError(http.StatusMisdirectedRequest, "FLOW_DATA_DECRYPT_FAILED", "failed to decrypt flow data", err)
	}
	return plain, nil
}

// EncryptFlowResponse serializes response and seals it with the derived response IV.
// The result is base64(ciphertext || tag).
func EncryptFlowResponse(response interface{}, key, requestIV []byte, mode IVMode) (string, error) {
	plain, err := json.Marshal(response)
	if err != nil {
		return "", fmt.Errorf("failed to encode flow response: %w", err)
	}
	iv := ResponseIV(requestIV, mode)
	gcm, err := newGCM(key, len(iv))
	if err != nil {
		return "", fmt.Errorf("failed to prepare response cipher: %w", err)
	}
	sealed := gcm.Seal(nil, iv, plain, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// ResponseIV derives the response IV from the request IV
func ResponseIV(requestIV []byte, mode IVMode) []byte {
	out := make([]byte, len(requestIV))
	switch mode {
	case IVModeReverse:
		for i, b := range requestIV {
			out[len(requestIV)-1-i] = b
		}
	default:
		for i, b := range requestIV {
			out[i] = ^b
		}
	}
	return out
}

func newGCM(key []byte, nonceSize int) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCMWithNonceSize(block, nonceSize)
}

// LoadFlowPrivateKey reads the Flow endpoint key from a PEM literal or a file path.
// Literals copied from env files may carry escaped newlines.
func LoadFlowPrivateKey(pemLiteral, path string) (*rsa.PrivateKey, error) {
	var data []byte
	switch {
	case strings.TrimSpace(pemLiteral) != "":
		data = []byte(strings.ReplaceAll(pemLiteral, `\n`, "\n"))
	case path != "":
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read flow private key: %w", err)
		}
		data = b
	default:
		return nil, ErrFlowKeyMissing
	}
	return ParseRSAPrivateKey(data)
}

// ParseRSAPrivateKey decodes a PKCS#1 or PKCS#8 PEM block
func ParseRSAPrivateKey(pemData []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(pemData)
	if block == nil {
		return nil, errors.New("flow private key is not PEM encoded")
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse flow private key: %w", err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("flow private key is not an RSA key")
	}
	return key, nil
}

// FlowEnvelope is the encrypted body WhatsApp posts to a Flow endpoint
type FlowEnvelope struct {
	EncryptedFlowData string `json:"encrypted_flow_data"`
	EncryptedAESKey   string `json:"encrypted_aes_key"`
	InitialVector     string `json:"initial_vector"`
}

// FlowCodec decrypts requests and encrypts responses with one key and IV mode
type FlowCodec struct {
	privateKey *rsa.PrivateKey
	mode       IVMode
}

// NewFlowCodec creates a codec; a nil key makes every encrypted request fail with 500
func NewFlowCodec(privateKey *rsa.PrivateKey, mode IVMode) *FlowCodec {
	return &FlowCodec{privateKey: privateKey, mode: mode}
}

// FlowSession carries what is needed to answer one decrypted request
type FlowSession struct {
	Plaintext []byte
	key       []byte
	iv        []byte
}

// Open decrypts an envelope
func (c *FlowCodec) Open(env FlowEnvelope) (*FlowSession, error) {
	if c == nil || c.privateKey == nil {
		return nil, newFlowError(http.StatusInternalServerError, "FLOW_KEY_MISSING", "flow private key is not configured", ErrFlowKeyMissing)
	}
	if env.EncryptedFlowData == "" || env.EncryptedAESKey == "" || env.InitialVector == "" {
		return nil, newFlowError(http.StatusBadRequest, "INVALID_FLOW_REQUEST", "encrypted flow request is incomplete", nil)
	}
	key, err := DecryptAESKey(env.EncryptedAESKey, c.privateKey)
	if err != nil {
		return nil, err
	}
	plain, err := DecryptFlowData(env.EncryptedFlowData, key, env.InitialVector)
	if err != nil {
		return nil, err
	}
	iv, _ := base64.StdEncoding.DecodeString(env.InitialVector)
	return &FlowSession{Plaintext: plain, key: key, iv: iv}, nil
}

// Seal encrypts a response for the session that produced the request
func (c *FlowCodec) Seal(session *FlowSession, response interface{}) (string, error) {
	return EncryptFlowResponse(response, session.key, session.iv, c.mode)
}
