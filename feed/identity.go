// Package feed reads Swarm feeds through a Bee gateway.
package feed

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/xerrors"
)

// Identity names a feed: the account that signs updates and the topic they are about.
type Identity struct {
	Owner common.Address
	Topic common.Hash
}

// ParseIdentity accepts the owner address and topic hash as hex, with or without 0x.
func ParseIdentity(owner, topic string) (Identity, error) {
	if !common.IsHexAddress(owner) {
		return Identity{}, xerrors.Errorf("feed: invalid owner address %q", owner)
	}
	raw, err := hexutil.Decode(with0x(topic))
	if err != nil {
		return Identity{}, xerrors.Errorf("feed: invalid topic %q: %w", topic, err)
	}
	if len(raw) != common.HashLength {
		return Identity{}, xerrors.Errorf("feed: topic must be %d bytes, got %d", common.HashLength, len(raw))
	}
	return Identity{
		Owner: common.HexToAddress(owner),
		Topic: common.BytesToHash(raw),
	}, nil
}

// TopicFromName hashes a human readable topic the way publishers derive it.
func TopicFromName(name string) common.Hash {
	return crypto.Keccak256Hash([]byte(name))
}

// OwnerHex is the owner as lower case hex without prefix, as the gateway expects in paths.
func (id Identity) OwnerHex() string {
	return strings.ToLower(common.Bytes2Hex(id.Owner.Bytes()))
}

// TopicHex is the topic as hex without prefix.
func (id Identity) TopicHex() string {
	return common.Bytes2Hex(id.Topic.Bytes())
}

func (id Identity) String() string {
	return id.OwnerHex() + "/" + id.TopicHex()
}

func with0x(s string) string {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return "0x" + s[2:]
	}
	return "0x" + s
}
