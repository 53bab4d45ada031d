package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/roach88/vetogate/internal/config"
	"github.com/roach88/vetogate/internal/engine"
	"github.com/roach88/vetogate/internal/store"
	"github.com/roach88/vetogate/internal/types"
)

// labels maps deployed contract addresses to their labels for text output.
type labels map[types.Address]string

func (s *session) labels(ctx context.Context) (labels, error) {
	records, err := s.engine.Contracts(ctx)
	if err != nil {
		return nil, err
	}
	out := make(labels, len(records)+1)
	for _, r := range records {
		out[r.Address] = r.Label
	}
	if deployer, err := s.cfg.DeployerAddress(); err == nil {
		out.account(deployer, s.cfg.Deployer)
	}
	return out, nil
}

// account names an external account address after the reference it was
// resolved from. Hex references are left alone.
func (l labels) account(addr types.Address, ref string) {
	if _, ok := l[addr]; ok || strings.HasPrefix(ref, "0x") || strings.HasPrefix(ref, "0X") {
		return
	}
	l[addr] = ref
}

// name renders addr as a label when known.
func (l labels) name(addr types.Address) string {
	if addr == types.ZeroAddress {
		return "-"
	}
	if label, ok := l[addr]; ok {
		return label
	}
	return addr.Hex()
}

// resolveSender maps a sender reference onto an address: a contract label
// ("alpha/core"), a hex address or an account name.
func (s *session) resolveSender(ctx context.Context, ref string) (types.Address, error) {
	if strings.Contains(ref, "/") {
		rec, err := s.resolveContract(ctx, ref)
		if err != nil {
			return types.ZeroAddress, err
		}
		return rec.Address, nil
	}
	addr, err := config.ResolveAccount(ref)
	if err != nil {
		return types.ZeroAddress, WrapExitError(ExitCommandError, "invalid --sender", err)
	}
	return addr, nil
}

// parseMsg checks that raw is a JSON object naming exactly one variant.
func parseMsg(flag, raw string) (json.RawMessage, error) {
	var m map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("invalid --%s JSON: %v", flag, err))
	}
	if len(m) != 1 {
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("--%s must name exactly one variant, got %d", flag, len(m)))
	}
	return json.RawMessage(raw), nil
}

// variant returns the variant name of a raw single-variant message.
func variant(msg json.RawMessage) string {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(msg, &m); err != nil || len(m) != 1 {
		return "?"
	}
	for name := range m {
		return name
	}
	return "?"
}

// printOutcome renders every unit of out, indented by depth, followed by the
// command's data.
func printOutcome(w io.Writer, out *engine.Outcome, l labels) {
	fmt.Fprintf(w, "command %s\n", out.CommandID)
	for _, u := range out.Units {
		line := fmt.Sprintf("  %d %s%s %s -> %s.%s",
			u.Step, strings.Repeat("  ", u.Depth), u.Kind, l.name(u.Sender), l.name(u.Contract), variant(u.Msg))
		if u.Kind == store.UnitInstantiate {
			line = fmt.Sprintf("  %d %sinstantiate %s -> %s",
				u.Step, strings.Repeat("  ", u.Depth), l.name(u.Sender), l.name(u.Contract))
		}
		if !u.OK() {
			line += fmt.Sprintf(" error=%s (%s)", u.ErrorKind, u.Error)
		}
		fmt.Fprintln(w, line)
	}
	if len(out.Data) > 0 {
		fmt.Fprintf(w, "data: %s\n", out.Data)
	}
}
