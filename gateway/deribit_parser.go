package gateway

import (
	"encoding/json"
	"errors"
	"fmt"

	"vol-index-go/market"
)

// SeedRequestID tags the history request so its response can be told apart
// from subscription acks.
const SeedRequestID = "seed"

// MessageKind 消息分类。
type MessageKind int

const (
	KindOther MessageKind = iota
	KindSeed
	KindPriceIndex
)

func (k MessageKind) String() string {
	switch k {
	case KindSeed:
		return "seed"
	case KindPriceIndex:
		return "price_index"
	default:
		return "other"
	}
}

var ErrMalformedSeed = errors.New("malformed seed point")

// RPCRequest is an outgoing JSON-RPC 2.0 call.
type RPCRequest struct {
	JSONRPC string         `json:"jsonrpc"`
	ID      any            `json:"id"`
	Method  string         `json:"method"`
	Params  map[string]any `json:"params"`
}

// SeedRequest asks for the index chart history used to warm the window.
func SeedRequest(index, rng string) RPCRequest {
	return RPCRequest{
		JSONRPC: "2.0",
		ID:      SeedRequestID,
		Method:  "public/get_index_chart_data",
		Params:  map[string]any{"index_name": index, "range": rng},
	}
}

// SubscribeRequest subscribes to live notifications on channels.
func SubscribeRequest(id int, channels ...string) RPCRequest {
	return RPCRequest{
		JSONRPC: "2.0",
		ID:      id,
		Method:  "public/subscribe",
		Params:  map[string]any{"channels": channels},
	}
}

// PriceIndexChannel returns the notification channel for an index name.
func PriceIndexChannel(index string) string {
	return "deribit_price_index." + index
}

type rpcEnvelope struct {
	ID     json.RawMessage `json:"id"`
	Result json.RawMessage `json:"result"`
	Method string          `json:"method"`
	Params *struct {
		Channel string          `json:"channel"`
		Data    json.RawMessage `json:"data"`
	} `json:"params"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type priceIndexData struct {
	IndexName string  `json:"index_name"`
	Price     float64 `json:"price"`
	Timestamp int64   `json:"timestamp"`
}

// Message is a classified inbound frame.
type Message struct {
	Kind    MessageKind
	Channel string
	Index   string
	Seed    []market.Tick
	Tick    market.Tick
}

// RPCError is an error response from the server.
type RPCError struct {
	Code    int
	Message string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Classify decodes raw and sorts it into seed, price-index or other.
// Frames that are neither are returned as KindOther without error.
func Classify(raw []byte) (Message, error) {
	var env rpcEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Message{}, fmt.Errorf("decode frame: %w", err)
	}
	if env.Error != nil {
		return Message{}, &RPCError{Code: env.Error.Code, Message: env.Error.Message}
	}

	var id string
	if len(env.ID) > 0 && json.Unmarshal(env.ID, &id) == nil && id == SeedRequestID {
		seed, err := parseSeed(env.Result)
		if err != nil {
			return Message{}, err
		}
		return Message{Kind: KindSeed, Seed: seed}, nil
	}

	if env.Method == "subscription" && env.Params != nil && len(env.Params.Data) > 0 {
		var d priceIndexData
		if err := json.Unmarshal(env.Params.Data, &d); err != nil {
			return Message{}, fmt.Errorf("decode %s: %w", env.Params.Channel, err)
		}
		if d.IndexName != "" && env.Params.Channel == PriceIndexChannel(d.IndexName) {
			return Message{
				Kind:    KindPriceIndex,
				Channel: env.Params.Channel,
				Index:   d.IndexName,
				Tick:    market.Tick{Time: d.Timestamp, Value: d.Price},
			}, nil
		}
		return Message{Kind: KindOther, Channel: env.Params.Channel}, nil
	}
	return Message{Kind: KindOther}, nil
}

// parseSeed decodes [[timestampMs, price], ...].
func parseSeed(raw json.RawMessage) ([]market.Tick, error) {
	var rows [][]json.Number
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("decode seed: %w", err)
	}
	out := make([]market.Tick, 0, len(rows))
	for i, r := range rows {
		if len(r) < 2 {
			return nil, fmt.Errorf("%w: row %d has %d fields", ErrMalformedSeed, i, len(r))
		}
		ts, err := r[0].Float64()
		if err != nil {
			return nil, fmt.Errorf("%w: row %d time: %v", ErrMalformedSeed, i, err)
		}
		px, err := r[1].Float64()
		if err != nil {
			return nil, fmt.Errorf("%w: row %d price: %v", ErrMalformedSeed, i, err)
		}
		out = append(out, market.Tick{Time: int64(ts), Value: px})
	}
	return out, nil
}
