package registry

import (
	"errors"
	"testing"

	contractBase "github.com/prismchain/prism/contract/base"
	lbase "github.com/prismchain/prism/ledger/base"
	sbase "github.com/prismchain/prism/state/base"
)

type fakeContract struct {
	installs int
}

func (t *fakeContract) ParamSchema() contractBase.ParamSchema {
	return nil
}

func (t *fakeContract) OnInstall(ctx *sbase.ExecCtx, params map[string]interface{}) error {
	t.installs++
	return nil
}

func TestRegistryLifecycle(t *testing.T) {
	addr, _ := lbase.AddressFromHex("0x00000000000000000000000000000000000000aa")

	loads := 0
	loader := func(lbase.Address) (contractBase.Contract, error) {
		loads++
		return &fakeContract{}, nil
	}
	reg, err := NewCachedRegistry(loader, nil)
	if err != nil {
		t.Fatal(err)
	}

	if reg.HasDB(addr) {
		t.Error("fresh address should have no db")
	}

	first, err := reg.GetContract(addr)
	if err != nil {
		t.Fatal("get contract failed", err)
	}
	if !reg.HasDB(addr) {
		t.Error("loading should create the db")
	}

	second, _ := reg.GetContract(addr)
	if first != second || loads != 1 {
		t.Error("second get should hit the cache", loads)
	}

	// dropping the instance keeps the db marker
	reg.DeleteContract(addr)
	if !reg.HasDB(addr) {
		t.Error("delete must not drop the db marker")
	}
	reg.GetContract(addr)
	if loads != 2 {
		t.Error("get after delete should reload", loads)
	}
}

func TestRegistryLoaderError(t *testing.T) {
	addr, _ := lbase.AddressFromHex("0x00000000000000000000000000000000000000bb")
	wantErr := errors.New("no code")
	reg, err := NewCachedRegistry(func(lbase.Address) (contractBase.Contract, error) {
		return nil, wantErr
	}, contractBase.DefaultContractConfig())
	if err != nil {
		t.Fatal(err)
	}

	if _, err = reg.GetContract(addr); err == nil {
		t.Error("loader error should propagate")
	}
	if reg.HasDB(addr) {
		t.Error("failed load must not create the db")
	}
}

func TestRegistryNilLoader(t *testing.T) {
	if _, err := NewCachedRegistry(nil, nil); err == nil {
		t.Error("nil loader should be rejected")
	}
}
