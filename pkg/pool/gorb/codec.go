package gorb

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

var (
	ErrMalformedPayload       = errors.New("malformed instruction payload")
	ErrUnknownDiscriminator   = errors.New("unknown instruction discriminator")
	ErrUnsupportedOperation   = errors.New("operation not supported by discriminator table")
	ErrDiscriminatorCollision = errors.New("discriminator assigned to more than one operation")
)

// Operation identifies one instruction of the AMM program independently of its wire discriminator.
type Operation uint8

const (
	OpInitPool Operation = iota
	OpAddLiquidity
	OpRemoveLiquidity
	OpSwap
	OpMultihopSwap
	OpCollectFees
	OpWithdrawFees
	OpSetFeeTreasury
	OpSwapNativeAssetToToken
	OpFindPoolsByToken
)

var operationNames = map[Operation]string{
	OpInitPool:               "InitPool",
	OpAddLiquidity:           "AddLiquidity",
	OpRemoveLiquidity:        "RemoveLiquidity",
	OpSwap:                   "Swap",
	OpMultihopSwap:           "MultihopSwap",
	OpCollectFees:            "CollectFees",
	OpWithdrawFees:           "WithdrawFees",
	OpSetFeeTreasury:         "SetFeeTreasury",
	OpSwapNativeAssetToToken: "SwapNativeAssetToToken",
	OpFindPoolsByToken:       "FindPoolsByToken",
}

func (op Operation) String() string {
	if name, ok := operationNames[op]; ok {
		return name
	}
	return fmt.Sprintf("Operation(%d)", uint8(op))
}

// payloadSizes excludes the discriminator byte.
var payloadSizes = map[Operation]int{
	OpInitPool:               32 + 32 + 8 + 8 + 1,
	OpAddLiquidity:           8 + 8,
	OpRemoveLiquidity:        8,
	OpSwap:                   8 + 1,
	OpMultihopSwap:           8 + 8,
	OpCollectFees:            32,
	OpWithdrawFees:           32 + 8 + 8,
	OpSetFeeTreasury:         32 + 32,
	OpSwapNativeAssetToToken: 8 + 8,
	OpFindPoolsByToken:       32,
}

// EncodedSize returns the total encoded length of op, discriminator included.
func EncodedSize(op Operation) (int, error) {
	size, ok := payloadSizes[op]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedOperation, op)
	}
	return 1 + size, nil
}

// Discriminators maps operations to their leading byte for one program build.
type Discriminators map[Operation]uint8

// DefaultDiscriminators matches the deployed program's instruction enum.
var DefaultDiscriminators = Discriminators{
	OpInitPool:               0,
	OpAddLiquidity:           1,
	OpRemoveLiquidity:        2,
	OpSwap:                   3,
	OpMultihopSwap:           4,
	OpCollectFees:            6,
	OpWithdrawFees:           7,
	OpSetFeeTreasury:         8,
	OpSwapNativeAssetToToken: 12,
}

// QueryDiscriminators is the table of builds that expose FindPoolsByToken at index 8
// in place of SetFeeTreasury.
var QueryDiscriminators = Discriminators{
	OpInitPool:               0,
	OpAddLiquidity:           1,
	OpRemoveLiquidity:        2,
	OpSwap:                   3,
	OpMultihopSwap:           4,
	OpCollectFees:            6,
	OpWithdrawFees:           7,
	OpFindPoolsByToken:       8,
	OpSwapNativeAssetToToken: 12,
}

// Payload is the typed field set of one instruction.
type Payload interface {
	Operation() Operation
	bin.BinaryMarshaler
	bin.BinaryUnmarshaler
}

// Codec encodes and decodes instruction data against one discriminator table.
type Codec struct {
	table   Discriminators
	reverse map[uint8]Operation
}

// NewCodec validates the table and returns a codec for it.
func NewCodec(table Discriminators) (*Codec, error) {
	c := &Codec{
		table:   make(Discriminators, len(table)),
		reverse: make(map[uint8]Operation, len(table)),
	}
	for op, d := range table {
		if _, ok := payloadSizes[op]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedOperation, op)
		}
		if other, ok := c.reverse[d]; ok {
			return nil, fmt.Errorf("%w: %d used by %s and %s", ErrDiscriminatorCollision, d, other, op)
		}
		c.table[op] = d
		c.reverse[d] = op
	}
	return c, nil
}

// MustNewCodec is NewCodec for tables known at compile time.
func MustNewCodec(table Discriminators) *Codec {
	c, err := NewCodec(table)
	if err != nil {
		panic(err)
	}
	return c
}

// Discriminator returns the leading byte for op.
func (c *Codec) Discriminator(op Operation) (uint8, bool) {
	d, ok := c.table[op]
	return d, ok
}

// Encode writes the discriminator followed by the fixed payload layout.
func (c *Codec) Encode(p Payload) ([]byte, error) {
	op := p.Operation()
	d, ok := c.table[op]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedOperation, op)
	}
	size, err := EncodedSize(op)
	if err != nil {
		return nil, err
	}

	buf := bytes.NewBuffer(make([]byte, 0, size))
	buf.WriteByte(d)
	if err := p.MarshalWithEncoder(bin.NewBorshEncoder(buf)); err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", op, err)
	}
	if buf.Len() != size {
		return nil, fmt.Errorf("%s encoded to %d bytes, expected %d", op, buf.Len(), size)
	}
	return buf.Bytes(), nil
}

// Decode parses data produced by Encode. The length must match the discriminator's
// fixed size exactly.
func (c *Codec) Decode(data []byte) (Payload, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty buffer", ErrMalformedPayload)
	}
	op, ok := c.reverse[data[0]]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownDiscriminator, data[0])
	}
	size, err := EncodedSize(op)
	if err != nil {
		return nil, err
	}
	if len(data) != size {
		return nil, fmt.Errorf("%w: %s needs %d bytes, got %d", ErrMalformedPayload, op, size, len(data))
	}

	p := newPayload(op)
	if err := p.UnmarshalWithDecoder(bin.NewBorshDecoder(data[1:])); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedPayload, op, err)
	}
	return p, nil
}

func newPayload(op Operation) Payload {
	switch op {
	case OpInitPool:
		return &InitPool{}
	case OpAddLiquidity:
		return &AddLiquidity{}
	case OpRemoveLiquidity:
		return &RemoveLiquidity{}
	case OpSwap:
		return &Swap{}
	case OpMultihopSwap:
		return &MultihopSwap{}
	case OpCollectFees:
		return &CollectFees{}
	case OpWithdrawFees:
		return &WithdrawFees{}
	case OpSetFeeTreasury:
		return &SetFeeTreasury{}
	case OpSwapNativeAssetToToken:
		return &SwapNativeAssetToToken{}
	case OpFindPoolsByToken:
		return &FindPoolsByToken{}
	}
	return nil
}

// InitPool creates a pool for the ordered pair (MintA, MintB) and seeds it.
type InitPool struct {
	MintA   solana.PublicKey
	MintB   solana.PublicKey
	AmountA uint64
	AmountB uint64
	Bump    uint8
}

func (*InitPool) Operation() Operation { return OpInitPool }

func (p *InitPool) MarshalWithEncoder(enc *bin.Encoder) error {
	if err := writePublicKey(enc, p.MintA); err != nil {
		return err
	}
	if err := writePublicKey(enc, p.MintB); err != nil {
		return err
	}
	if err := enc.WriteUint64(p.AmountA, binary.LittleEndian); err != nil {
		return err
	}
	if err := enc.WriteUint64(p.AmountB, binary.LittleEndian); err != nil {
		return err
	}
	return enc.WriteUint8(p.Bump)
}

func (p *InitPool) UnmarshalWithDecoder(dec *bin.Decoder) (err error) {
	if p.MintA, err = readPublicKey(dec); err != nil {
		return err
	}
	if p.MintB, err = readPublicKey(dec); err != nil {
		return err
	}
	if p.AmountA, err = dec.ReadUint64(binary.LittleEndian); err != nil {
		return err
	}
	if p.AmountB, err = dec.ReadUint64(binary.LittleEndian); err != nil {
		return err
	}
	p.Bump, err = dec.ReadUint8()
	return err
}

type AddLiquidity struct {
	AmountA uint64
	AmountB uint64
}

func (*AddLiquidity) Operation() Operation { return OpAddLiquidity }

func (p *AddLiquidity) MarshalWithEncoder(enc *bin.Encoder) error {
	return writeUint64s(enc, p.AmountA, p.AmountB)
}

func (p *AddLiquidity) UnmarshalWithDecoder(dec *bin.Decoder) (err error) {
	if p.AmountA, err = dec.ReadUint64(binary.LittleEndian); err != nil {
		return err
	}
	p.AmountB, err = dec.ReadUint64(binary.LittleEndian)
	return err
}

type RemoveLiquidity struct {
	LPAmount uint64
}

func (*RemoveLiquidity) Operation() Operation { return OpRemoveLiquidity }

func (p *RemoveLiquidity) MarshalWithEncoder(enc *bin.Encoder) error {
	return enc.WriteUint64(p.LPAmount, binary.LittleEndian)
}

func (p *RemoveLiquidity) UnmarshalWithDecoder(dec *bin.Decoder) (err error) {
	p.LPAmount, err = dec.ReadUint64(binary.LittleEndian)
	return err
}

// Swap trades AmountIn of asset A for B when AToB is set, B for A otherwise.
type Swap struct {
	AmountIn uint64
	AToB     bool
}

func (*Swap) Operation() Operation { return OpSwap }

func (p *Swap) MarshalWithEncoder(enc *bin.Encoder) error {
	if err := enc.WriteUint64(p.AmountIn, binary.LittleEndian); err != nil {
		return err
	}
	return enc.WriteBool(p.AToB)
}

func (p *Swap) UnmarshalWithDecoder(dec *bin.Decoder) (err error) {
	if p.AmountIn, err = dec.ReadUint64(binary.LittleEndian); err != nil {
		return err
	}
	p.AToB, err = readBool(dec)
	return err
}

type MultihopSwap struct {
	AmountIn         uint64
	MinimumAmountOut uint64
}

func (*MultihopSwap) Operation() Operation { return OpMultihopSwap }

func (p *MultihopSwap) MarshalWithEncoder(enc *bin.Encoder) error {
	return writeUint64s(enc, p.AmountIn, p.MinimumAmountOut)
}

func (p *MultihopSwap) UnmarshalWithDecoder(dec *bin.Decoder) (err error) {
	if p.AmountIn, err = dec.ReadUint64(binary.LittleEndian); err != nil {
		return err
	}
	p.MinimumAmountOut, err = dec.ReadUint64(binary.LittleEndian)
	return err
}

type CollectFees struct {
	Pool solana.PublicKey
}

func (*CollectFees) Operation() Operation { return OpCollectFees }

func (p *CollectFees) MarshalWithEncoder(enc *bin.Encoder) error {
	return writePublicKey(enc, p.Pool)
}

func (p *CollectFees) UnmarshalWithDecoder(dec *bin.Decoder) (err error) {
	p.Pool, err = readPublicKey(dec)
	return err
}

type WithdrawFees struct {
	Pool    solana.PublicKey
	AmountA uint64
	AmountB uint64
}

func (*WithdrawFees) Operation() Operation { return OpWithdrawFees }

func (p *WithdrawFees) MarshalWithEncoder(enc *bin.Encoder) error {
	if err := writePublicKey(enc, p.Pool); err != nil {
		return err
	}
	return writeUint64s(enc, p.AmountA, p.AmountB)
}

func (p *WithdrawFees) UnmarshalWithDecoder(dec *bin.Decoder) (err error) {
	if p.Pool, err = readPublicKey(dec); err != nil {
		return err
	}
	if p.AmountA, err = dec.ReadUint64(binary.LittleEndian); err != nil {
		return err
	}
	p.AmountB, err = dec.ReadUint64(binary.LittleEndian)
	return err
}

type SetFeeTreasury struct {
	Pool     solana.PublicKey
	Treasury solana.PublicKey
}

func (*SetFeeTreasury) Operation() Operation { return OpSetFeeTreasury }

func (p *SetFeeTreasury) MarshalWithEncoder(enc *bin.Encoder) error {
	if err := writePublicKey(enc, p.Pool); err != nil {
		return err
	}
	return writePublicKey(enc, p.Treasury)
}

func (p *SetFeeTreasury) UnmarshalWithDecoder(dec *bin.Decoder) (err error) {
	if p.Pool, err = readPublicKey(dec); err != nil {
		return err
	}
	p.Treasury, err = readPublicKey(dec)
	return err
}

// SwapNativeAssetToToken pays AmountIn lamports into a native pool.
type SwapNativeAssetToToken struct {
	AmountIn         uint64
	MinimumAmountOut uint64
}

func (*SwapNativeAssetToToken) Operation() Operation { return OpSwapNativeAssetToToken }

func (p *SwapNativeAssetToToken) MarshalWithEncoder(enc *bin.Encoder) error {
	return writeUint64s(enc, p.AmountIn, p.MinimumAmountOut)
}

func (p *SwapNativeAssetToToken) UnmarshalWithDecoder(dec *bin.Decoder) (err error) {
	if p.AmountIn, err = dec.ReadUint64(binary.LittleEndian); err != nil {
		return err
	}
	p.MinimumAmountOut, err = dec.ReadUint64(binary.LittleEndian)
	return err
}

type FindPoolsByToken struct {
	Token solana.PublicKey
}

func (*FindPoolsByToken) Operation() Operation { return OpFindPoolsByToken }

func (p *FindPoolsByToken) MarshalWithEncoder(enc *bin.Encoder) error {
	return writePublicKey(enc, p.Token)
}

func (p *FindPoolsByToken) UnmarshalWithDecoder(dec *bin.Decoder) (err error) {
	p.Token, err = readPublicKey(dec)
	return err
}

func writePublicKey(enc *bin.Encoder, key solana.PublicKey) error {
	return enc.WriteBytes(key[:], false)
}

func writeUint64s(enc *bin.Encoder, values ...uint64) error {
	for _, v := range values {
		if err := enc.WriteUint64(v, binary.LittleEndian); err != nil {
			return err
		}
	}
	return nil
}

func readPublicKey(dec *bin.Decoder) (solana.PublicKey, error) {
	b, err := dec.ReadNBytes(solana.PublicKeyLength)
	if err != nil {
		return solana.PublicKey{}, err
	}
	return solana.PublicKeyFromBytes(b), nil
}

// The program only accepts 0 or 1 for a bool.
func readBool(dec *bin.Decoder) (bool, error) {
	b, err := dec.ReadUint8()
	if err != nil {
		return false, err
	}
	switch b {
	case 0:
		return false, nil
	case 1:
		return true, nil
	}
	return false, fmt.Errorf("invalid bool byte %d", b)
}
