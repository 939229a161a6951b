package crypto

import "encoding/base64"

// Decodes standard padded base64, falling back to the unpadded alphabet
// since some clients strip the trailing '='.
func DecodeBase64(data string) ([]byte, error) {
	ret, err := base64.StdEncoding.DecodeString(data)
	if err == nil {
		return ret, nil
	}
	if ret, rawErr := base64.RawStdEncoding.DecodeString(data); rawErr == nil {
		return ret, nil
	}
	return nil, err
}

func EncodeBase64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}
