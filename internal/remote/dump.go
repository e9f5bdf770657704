package remote

import (
	"encoding/json"

	"github.com/daggerml/dml/internal/wire"
)

func decodeDump(data []byte) ([]wire.WirePair, error) {
	var pairs []wire.WirePair
	if err := json.Unmarshal(data, &pairs); err != nil {
		return nil, err
	}
	return pairs, nil
}

func encodeDump(pairs []wire.WirePair) ([]byte, error) {
	return json.Marshal(pairs)
}
