package base

import (
	lbase "github.com/prismchain/prism/ledger/base"
	sbase "github.com/prismchain/prism/state/base"
)

// AccountStore records deploy side effects on the account state
type AccountStore interface {
	// PutContractOwner records the owner of a deployed contract
	PutContractOwner(ctx *sbase.ExecCtx, contract, owner lbase.Address) error
	// GetContractOwner returns the recorded owner of a contract
	GetContractOwner(ctx *sbase.ExecCtx, contract lbase.Address) (lbase.Address, error)
}

// Contract is a loaded contract instance
type Contract interface {
	// ParamSchema declares the expected install parameter types
	ParamSchema() ParamSchema
	// OnInstall runs once, right after the first install of the contract
	OnInstall(ctx *sbase.ExecCtx, params map[string]interface{}) error
}

// Registry maps contract addresses to loaded instances and their databases
type Registry interface {
	// GetContract returns the instance mapped to the address, loading it on demand
	GetContract(addr lbase.Address) (Contract, error)
	// DeleteContract drops any mapped in-memory instance for the address
	DeleteContract(addr lbase.Address)
	// HasDB reports whether a database already exists for the address
	HasDB(addr lbase.Address) bool
}
