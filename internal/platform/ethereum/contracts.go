package ethereum

import (
	"bytes"
	"embed"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"propchain/internal/common/config"
)

//go:embed abi/*.json
var abiFS embed.FS

const (
	TitleRegistryName    = "TitleRegistry"
	KYCRegistryName      = "KYCRegistry"
	MarketplaceName      = "Marketplace"
	EscrowMultiSigName   = "EscrowMultiSig"
	PropertyRegistryName = "PropertyRegistry"
)

// GovernmentRole is keccak256("GOVERNMENT_ROLE"), the role allowed to mint deeds.
var GovernmentRole = crypto.Keccak256Hash([]byte("GOVERNMENT_ROLE"))

// Contract is a fixed (address, interface) pair.
type Contract struct {
	Name    string
	Address common.Address
	ABI     abi.ABI
}

// At returns the same interface bound to another address.
func (c *Contract) At(addr common.Address) *Contract {
	return &Contract{Name: c.Name, Address: addr, ABI: c.ABI}
}

type Contracts struct {
	TitleRegistry    *Contract
	KYCRegistry      *Contract
	Marketplace      *Contract
	PropertyRegistry *Contract

	// escrow contracts are created per deed, only the interface is fixed
	escrow *Contract
}

func NewContracts(cfg *config.Config) (*Contracts, error) {
	addrs := map[string]string{
		TitleRegistryName:    cfg.Chain.TitleRegistry,
		KYCRegistryName:      cfg.Chain.KYCRegistry,
		MarketplaceName:      cfg.Chain.Marketplace,
		PropertyRegistryName: cfg.Chain.PropertyRegistry,
	}

	bound := make(map[string]*Contract, len(addrs))
	for name, addr := range addrs {
		if !common.IsHexAddress(addr) {
			return nil, fmt.Errorf("invalid %s address %q", name, addr)
		}
		c, err := loadContract(name, common.HexToAddress(addr))
		if err != nil {
			return nil, err
		}
		bound[name] = c
	}

	escrow, err := loadContract(EscrowMultiSigName, common.Address{})
	if err != nil {
		return nil, err
	}

	return &Contracts{
		TitleRegistry:    bound[TitleRegistryName],
		KYCRegistry:      bound[KYCRegistryName],
		Marketplace:      bound[MarketplaceName],
		PropertyRegistry: bound[PropertyRegistryName],
		escrow:           escrow,
	}, nil
}

// Escrow binds the multi-signature escrow interface to addr.
func (c *Contracts) Escrow(addr common.Address) *Contract {
	return c.escrow.At(addr)
}

func loadContract(name string, addr common.Address) (*Contract, error) {
	raw, err := abiFS.ReadFile("abi/" + name + ".json")
	if err != nil {
		return nil, fmt.Errorf("read %s abi: %w", name, err)
	}
	parsed, err := abi.JSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse %s abi: %w", name, err)
	}
	return &Contract{Name: name, Address: addr, ABI: parsed}, nil
}
