package service

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/ledger-scanner/internal/errors"
	"github.com/ledger-scanner/internal/types"
)

// cursorVersion guards against replaying tokens minted by an older
// encoding. Bump when the ordering tuple changes shape.
const cursorVersion = 1

type cursorPayload struct {
	Version int            `json:"v"`
	Key     types.OrderKey `json:"k"`
}

// EncodeCursor mints an opaque pagination token for a leg position.
// The encoding is injective over the ordering tuple, so two distinct
// legs never share a token.
func EncodeCursor(key types.OrderKey) string {
	raw, _ := json.Marshal(cursorPayload{Version: cursorVersion, Key: key})
	return base64.RawURLEncoding.EncodeToString(raw)
}

// DecodeCursor reverses EncodeCursor. Malformed, truncated or
// wrong-version tokens come back as invalid-parameter errors.
func DecodeCursor(token string) (types.OrderKey, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return types.OrderKey{}, errors.NewInvalidParameterError("cursor", "not valid base64url")
	}
	var payload cursorPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return types.OrderKey{}, errors.NewInvalidParameterError("cursor", "malformed payload")
	}
	if payload.Version != cursorVersion {
		return types.OrderKey{}, errors.NewInvalidParameterError("cursor",
			fmt.Sprintf("unsupported version %d", payload.Version))
	}
	return payload.Key, nil
}
