package backtest

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	engineerrors "github.com/ducminhle1904/strategy-backtester/internal/errors"
	"github.com/ducminhle1904/strategy-backtester/pkg/types"
)

// Fingerprint returns the cache key of a backtest identity:
// backtest:<strategy>:<symbol>:<sha256>. Parameter maps are encoded with
// sorted keys, so insertion order does not matter.
func Fingerprint(strategyName, symbol string, start, end time.Time, params types.ParameterSet) (string, error) {
	if params == nil {
		params = types.ParameterSet{}
	}
	payload, err := json.Marshal([]any{
		strategyName,
		symbol,
		start.UTC().Format(time.RFC3339Nano),
		end.UTC().Format(time.RFC3339Nano),
		params,
	})
	if err != nil {
		return "", engineerrors.Wrap(err, engineerrors.KindConfiguration, "fingerprint", "encode parameters")
	}
	sum := sha256.Sum256(payload)
	return fmt.Sprintf("backtest:%s:%s:%s", strategyName, symbol, hex.EncodeToString(sum[:])), nil
}
