package engine

import (
	"fmt"
	"time"

	"github.com/tmaly1980/banked/internal/core"
)

// KindSpec describes one event family. The paycheck and deposit paths
// are the same engine instantiated with different descriptors.
type KindSpec struct {
	Kind core.EventKind
	// Label prefixes the display name of generated instances.
	Label string
}

var (
	PaycheckSpec = KindSpec{Kind: core.KindPaycheck, Label: "Paycheck"}
	DepositSpec  = KindSpec{Kind: core.KindDeposit, Label: "Deposit"}
)

// SpecFor returns the descriptor for a kind.
func SpecFor(kind core.EventKind) (KindSpec, error) {
	switch kind {
	case core.KindPaycheck:
		return PaycheckSpec, nil
	case core.KindDeposit:
		return DepositSpec, nil
	default:
		return KindSpec{}, fmt.Errorf("%w: %q", core.ErrUnknownKind, string(kind))
	}
}

// Synthesize builds the instance for one expanded occurrence. The
// identity is "<template-id>-<YYYY-MM-DD>": template IDs are unique and
// dates are canonical, so identities cannot collide across templates or
// dates. CreatedAt is the synthesis moment and is informational only.
func Synthesize(spec KindSpec, tpl core.Template, date core.Date, at time.Time) core.Instance {
	return core.Instance{
		ID:          tpl.ID + "-" + date.String(),
		UserID:      tpl.UserID,
		DisplayName: fmt.Sprintf("%s (%s)", spec.Label, tpl.Amount),
		Amount:      tpl.Amount,
		Date:        date,
		CreatedAt:   at,
		Generated:   true,
		TemplateID:  tpl.ID,
	}
}
