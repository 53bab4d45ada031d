package daostub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/samber/lo"

	"github.com/roach88/vetogate/internal/engine"
	"github.com/roach88/vetogate/internal/store"
	"github.com/roach88/vetogate/internal/types"
)

// CoreCodeName is the name the DAO core code is registered under.
const CoreCodeName = "dao-core"

// ItemTimelock is the item key under which a subDAO core records its timelock.
const ItemTimelock = "timelock"

// CoreInstantiateMsg configures a DAO core. A core with a main DAO is a subDAO.
type CoreInstantiateMsg struct {
	Name        string  `json:"name" validate:"required"`
	Description string  `json:"description"`
	MainDAO     *string `json:"main_dao,omitempty"`
	SecurityDAO *string `json:"security_dao,omitempty"`
}

// CoreConfig is the stored configuration of a DAO core.
type CoreConfig struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	MainDAO     *types.Address `json:"main_dao,omitempty"`
	SecurityDAO *types.Address `json:"security_dao,omitempty"`
	// Admin is the instantiating account. It may manage the core directly, standing
	// in for the module-management proposals of a full DAO.
	Admin types.Address `json:"admin"`
}

// SubDao is one entry of the registered subDAO set.
type SubDao struct {
	Addr    types.Address `json:"addr"`
	Charter string        `json:"charter,omitempty"`
}

// PauseInfo is the pause state of a core, {"paused":{"expiration":{"at_height":n}}}
// or {"unpaused":{}}.
type PauseInfo struct {
	Paused   *PausedInfo `json:"paused,omitempty"`
	Unpaused *struct{}   `json:"unpaused,omitempty"`
}

// PausedInfo holds the height at which a pause ends.
type PausedInfo struct {
	Expiration struct {
		AtHeight uint64 `json:"at_height"`
	} `json:"expiration"`
}

// ItemResponse is returned by get_item.
type ItemResponse struct {
	Item *types.Address `json:"item"`
}

type hookMsg struct {
	Msgs []types.Msg `json:"msgs"`
}

type updateSubDaosMsg struct {
	ToAdd    []SubDao `json:"to_add"`
	ToRemove []string `json:"to_remove"`
}

type setItemMsg struct {
	Key  string `json:"key" validate:"required"`
	Addr string `json:"addr" validate:"required,eth_addr"`
}

type moduleMsg struct {
	Addr string `json:"addr" validate:"required,eth_addr"`
}

type pauseMsg struct {
	Duration uint64 `json:"duration" validate:"gt=0"`
}

type getItemQuery struct {
	Key string `json:"key"`
}

const (
	keyCoreConfig  = "config"
	keySubDaos     = "sub_daos"
	keyModules     = "proposal_modules"
	keyPausedUntil = "paused_until"
	prefixItem     = "item/"
)

// Core is a minimal DAO core: a registry of proposal modules, subDAOs and named
// items that executes passed proposals on behalf of the DAO.
type Core struct{}

var _ engine.Contract = Core{}

// Instantiate stores the configuration. The sender becomes the admin.
func (Core) Instantiate(ctx context.Context, deps engine.Deps, env engine.Env, raw json.RawMessage) (engine.Response, error) {
	var msg CoreInstantiateMsg
	if err := types.DecodeStrict(raw, &msg); err != nil {
		return engine.Response{}, err
	}
	if err := types.ValidateStruct(types.KindInvalidConfig, msg); err != nil {
		return engine.Response{}, err
	}
	mainDAO, err := types.ParseOptionalAddress(msg.MainDAO)
	if err != nil {
		return engine.Response{}, fmt.Errorf("main_dao: %w", err)
	}
	securityDAO, err := types.ParseOptionalAddress(msg.SecurityDAO)
	if err != nil {
		return engine.Response{}, fmt.Errorf("security_dao: %w", err)
	}

	cfg := CoreConfig{
		Name:        msg.Name,
		Description: msg.Description,
		MainDAO:     mainDAO,
		SecurityDAO: securityDAO,
		Admin:       env.Sender,
	}
	if err := deps.Tx.SaveJSON(ctx, env.Contract, keyCoreConfig, cfg); err != nil {
		return engine.Response{}, err
	}
	if err := deps.Tx.SaveJSON(ctx, env.Contract, keySubDaos, []SubDao{}); err != nil {
		return engine.Response{}, err
	}
	if err := deps.Tx.SaveJSON(ctx, env.Contract, keyModules, []types.Address{}); err != nil {
		return engine.Response{}, err
	}
	return engine.NewResponse("instantiate").WithAttr("name", cfg.Name), nil
}

// Execute handles execute_proposal_hook and the management commands.
func (c Core) Execute(ctx context.Context, deps engine.Deps, env engine.Env, raw json.RawMessage) (engine.Response, error) {
	name, body, err := types.DecodeVariant(raw)
	if err != nil {
		return engine.Response{}, err
	}
	var cfg CoreConfig
	if err := deps.Tx.LoadJSON(ctx, env.Contract, keyCoreConfig, &cfg); err != nil {
		return engine.Response{}, err
	}

	switch name {
	case "execute_proposal_hook":
		var msg hookMsg
		if err := types.DecodeStrict(body, &msg); err != nil {
			return engine.Response{}, err
		}
		return c.executeHook(ctx, deps, env, msg)
	case "update_sub_daos":
		if err := requireManager(env, cfg); err != nil {
			return engine.Response{}, err
		}
		var msg updateSubDaosMsg
		if err := types.DecodeStrict(body, &msg); err != nil {
			return engine.Response{}, err
		}
		return c.updateSubDaos(ctx, deps, env, msg)
	case "set_item":
		if err := requireManager(env, cfg); err != nil {
			return engine.Response{}, err
		}
		var msg setItemMsg
		if err := decodeValid(body, &msg); err != nil {
			return engine.Response{}, err
		}
		addr, err := types.ParseAddress(msg.Addr)
		if err != nil {
			return engine.Response{}, err
		}
		if err := deps.Tx.SaveJSON(ctx, env.Contract, prefixItem+msg.Key, addr); err != nil {
			return engine.Response{}, err
		}
		return engine.NewResponse("set_item").WithAttr("key", msg.Key).WithAttr("addr", addr), nil
	case "register_proposal_module":
		if err := requireManager(env, cfg); err != nil {
			return engine.Response{}, err
		}
		var msg moduleMsg
		if err := decodeValid(body, &msg); err != nil {
			return engine.Response{}, err
		}
		return c.registerModule(ctx, deps, env, msg)
	case "pause":
		if env.Sender != env.Contract && env.Sender != cfg.Admin && (cfg.SecurityDAO == nil || env.Sender != *cfg.SecurityDAO) {
			return engine.Response{}, types.Errorf(types.KindUnauthorized, "unauthorized: %s may not pause", env.Sender.Hex())
		}
		var msg pauseMsg
		if err := decodeValid(body, &msg); err != nil {
			return engine.Response{}, err
		}
		until := env.Height + msg.Duration
		if err := deps.Tx.SaveJSON(ctx, env.Contract, keyPausedUntil, until); err != nil {
			return engine.Response{}, err
		}
		return engine.NewResponse("execute_pause").WithAttr("sender", env.Sender).WithAttr("paused_until_height", until), nil
	case "unpause":
		if err := requireManager(env, cfg); err != nil {
			return engine.Response{}, err
		}
		if err := deps.Tx.DeleteState(ctx, env.Contract, keyPausedUntil); err != nil {
			return engine.Response{}, err
		}
		return engine.NewResponse("execute_unpause").WithAttr("sender", env.Sender), nil
	default:
		return engine.Response{}, types.Errorf(types.KindUnknownMessage, "dao-core: unknown command %q", name)
	}
}

func (Core) executeHook(ctx context.Context, deps engine.Deps, env engine.Env, msg hookMsg) (engine.Response, error) {
	paused, err := pauseInfo(ctx, deps.Tx, env)
	if err != nil {
		return engine.Response{}, err
	}
	if paused.Paused != nil {
		return engine.Response{}, types.Errorf(types.KindPaused,
			"contract is paused until height %d", paused.Paused.Expiration.AtHeight)
	}

	var modules []types.Address
	if err := deps.Tx.LoadJSON(ctx, env.Contract, keyModules, &modules); err != nil {
		return engine.Response{}, err
	}
	if !lo.Contains(modules, env.Sender) {
		return engine.Response{}, types.Errorf(types.KindUnauthorized,
			"unauthorized: %s is not a proposal module", env.Sender.Hex())
	}

	resp := engine.NewResponse("execute_proposal_hook").WithAttr("sender", env.Sender)
	for _, m := range msg.Msgs {
		resp = resp.WithMessage(m)
	}
	return resp, nil
}

func (Core) updateSubDaos(ctx context.Context, deps engine.Deps, env engine.Env, msg updateSubDaosMsg) (engine.Response, error) {
	var subDaos []SubDao
	if err := deps.Tx.LoadJSON(ctx, env.Contract, keySubDaos, &subDaos); err != nil {
		return engine.Response{}, err
	}

	remove := make([]types.Address, 0, len(msg.ToRemove))
	for _, s := range msg.ToRemove {
		addr, err := types.ParseAddress(s)
		if err != nil {
			return engine.Response{}, fmt.Errorf("to_remove: %w", err)
		}
		remove = append(remove, addr)
	}
	subDaos = lo.Reject(subDaos, func(s SubDao, _ int) bool {
		return lo.Contains(remove, s.Addr)
	})
	for _, add := range msg.ToAdd {
		if add.Addr == types.ZeroAddress {
			return engine.Response{}, types.Errorf(types.KindInvalidAddress, "to_add: zero address is not allowed")
		}
		if _, found := lo.Find(subDaos, func(s SubDao) bool { return s.Addr == add.Addr }); !found {
			subDaos = append(subDaos, add)
		}
	}

	if err := deps.Tx.SaveJSON(ctx, env.Contract, keySubDaos, subDaos); err != nil {
		return engine.Response{}, err
	}
	return engine.NewResponse("execute_update_sub_daos").
		WithAttr("added", len(msg.ToAdd)).
		WithAttr("removed", len(remove)), nil
}

func (Core) registerModule(ctx context.Context, deps engine.Deps, env engine.Env, msg moduleMsg) (engine.Response, error) {
	addr, err := types.ParseAddress(msg.Addr)
	if err != nil {
		return engine.Response{}, err
	}
	var modules []types.Address
	if err := deps.Tx.LoadJSON(ctx, env.Contract, keyModules, &modules); err != nil {
		return engine.Response{}, err
	}
	if !lo.Contains(modules, addr) {
		modules = append(modules, addr)
	}
	if err := deps.Tx.SaveJSON(ctx, env.Contract, keyModules, modules); err != nil {
		return engine.Response{}, err
	}
	return engine.NewResponse("register_proposal_module").WithAttr("addr", addr), nil
}

// Query answers config, main_dao, list_sub_daos, get_item, timelock_address,
// proposal_modules and pause_info.
func (Core) Query(ctx context.Context, deps engine.Deps, env engine.Env, raw json.RawMessage) (json.RawMessage, error) {
	name, body, err := types.DecodeVariant(raw)
	if err != nil {
		return nil, err
	}
	var cfg CoreConfig
	if err := deps.Tx.LoadJSON(ctx, env.Contract, keyCoreConfig, &cfg); err != nil {
		return nil, err
	}

	switch name {
	case "config":
		return types.MarshalCanonical(cfg)
	case "main_dao":
		if cfg.MainDAO == nil {
			return nil, types.Errorf(types.KindNotFound, "%q has no main dao", cfg.Name)
		}
		return types.MarshalCanonical(*cfg.MainDAO)
	case "list_sub_daos":
		var subDaos []SubDao
		if err := deps.Tx.LoadJSON(ctx, env.Contract, keySubDaos, &subDaos); err != nil {
			return nil, err
		}
		return types.MarshalCanonical(subDaos)
	case "get_item":
		var q getItemQuery
		if err := types.DecodeStrict(body, &q); err != nil {
			return nil, err
		}
		item, err := loadItem(ctx, deps.Tx, env.Contract, q.Key)
		if err != nil {
			return nil, err
		}
		return types.MarshalCanonical(ItemResponse{Item: item})
	case "timelock_address":
		item, err := loadItem(ctx, deps.Tx, env.Contract, ItemTimelock)
		if err != nil {
			return nil, err
		}
		if item == nil {
			return nil, types.Errorf(types.KindNotFound, "%q has no timelock", cfg.Name)
		}
		return types.MarshalCanonical(*item)
	case "proposal_modules":
		var modules []types.Address
		if err := deps.Tx.LoadJSON(ctx, env.Contract, keyModules, &modules); err != nil {
			return nil, err
		}
		return types.MarshalCanonical(modules)
	case "pause_info":
		info, err := pauseInfo(ctx, deps.Tx, env)
		if err != nil {
			return nil, err
		}
		return types.MarshalCanonical(info)
	default:
		return nil, types.Errorf(types.KindUnknownMessage, "dao-core: unknown query %q", name)
	}
}

func requireManager(env engine.Env, cfg CoreConfig) error {
	if env.Sender == env.Contract || env.Sender == cfg.Admin {
		return nil
	}
	return types.Errorf(types.KindUnauthorized, "unauthorized: %s may not manage %q", env.Sender.Hex(), cfg.Name)
}

func pauseInfo(ctx context.Context, tx *store.Tx, env engine.Env) (PauseInfo, error) {
	var until uint64
	err := tx.LoadJSON(ctx, env.Contract, keyPausedUntil, &until)
	if errors.Is(err, store.ErrNotFound) || (err == nil && env.Height >= until) {
		return PauseInfo{Unpaused: &struct{}{}}, nil
	}
	if err != nil {
		return PauseInfo{}, err
	}
	info := PausedInfo{}
	info.Expiration.AtHeight = until
	return PauseInfo{Paused: &info}, nil
}

func loadItem(ctx context.Context, tx *store.Tx, contract types.Address, key string) (*types.Address, error) {
	var addr types.Address
	err := tx.LoadJSON(ctx, contract, prefixItem+key, &addr)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &addr, nil
}

func decodeValid(body json.RawMessage, v any) error {
	if err := types.DecodeStrict(body, v); err != nil {
		return err
	}
	return types.ValidateStruct(types.KindUnknownMessage, v)
}
