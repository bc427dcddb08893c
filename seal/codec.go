package seal

import (
	"fmt"
	"strings"

	"github.com/mr-tron/base58"
	"github.com/ruteri/key-custody/interfaces"
)

// Encode renders sealed bytes as base58 text. The alphabet has no characters that
// need quoting in shell, dotenv or YAML files.
func Encode(sealed []byte) interfaces.CustodyToken {
	return interfaces.CustodyToken(base58.Encode(sealed))
}

// Decode reverses Encode. Text that is not valid base58 cannot have been produced
// by this scheme and is reported as ErrIntegrity.
func Decode(token interfaces.CustodyToken) ([]byte, error) {
	text := strings.TrimSpace(string(token))
	if text == "" {
		return nil, fmt.Errorf("%w: empty token", interfaces.ErrIntegrity)
	}

	sealed, err := base58.Decode(text)
	if err != nil {
		return nil, fmt.Errorf("%w: token is not valid base58", interfaces.ErrIntegrity)
	}
	return sealed, nil
}
