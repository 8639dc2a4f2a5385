package evauthz

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/oarkflow/evauthz/logger"
)

// ============================================================================
// CONNECTOR CAPABILITIES
// ============================================================================

// ConnectorFlags tells a client what the actor may do on one connector.
type ConnectorFlags struct {
	ConnectorID int  `json:"connector_id"`
	CanStart    bool `json:"can_start"`
	CanStop     bool `json:"can_stop"`
	CanView     bool `json:"can_view"`
}

// ConnectorInputs are the derived facts the capability table is applied to.
type ConnectorInputs struct {
	OrgActive             bool
	AccessControlEnabled  bool
	AllowAllToStop        bool
	AssignedToSite        bool
	SameUserAsTransaction bool
	BaseStart             bool
	BaseStop              bool
}

// ApplyConnectorTable restricts the base start/stop permissions by role. It never
// grants more than BaseStart/BaseStop. Roles without a row keep their base
// permissions and cannot view.
func ApplyConnectorTable(role Role, in ConnectorInputs) ConnectorFlags {
	onSite := !in.OrgActive || in.AssignedToSite
	switch role {
	case RoleAdmin:
		return ConnectorFlags{
			CanStart: in.BaseStart && onSite,
			CanStop:  in.BaseStop && onSite,
			CanView:  onSite,
		}
	case RoleDemo:
		return ConnectorFlags{CanView: onSite}
	case RoleBasic:
		offOwn := !in.OrgActive && in.AccessControlEnabled && in.SameUserAsTransaction
		offOpen := !in.OrgActive && !in.AccessControlEnabled
		assigned := in.OrgActive && in.AssignedToSite
		stop := (assigned && (in.AllowAllToStop || in.SameUserAsTransaction || !in.AccessControlEnabled)) || offOwn || offOpen
		view := (assigned && (in.SameUserAsTransaction || !in.AccessControlEnabled)) || offOwn || offOpen
		return ConnectorFlags{
			CanStart: in.BaseStart && onSite,
			CanStop:  in.BaseStop && stop,
			CanView:  view,
		}
	default:
		return ConnectorFlags{CanStart: in.BaseStart, CanStop: in.BaseStop}
	}
}

// ConnectorOption configures a ConnectorAuthorizer.
type ConnectorOption func(*ConnectorAuthorizer)

func WithConnectorLogger(l logger.Logger) ConnectorOption {
	return func(c *ConnectorAuthorizer) {
		if l != nil {
			c.logger = l
		}
	}
}

// ConnectorAuthorizer derives the table inputs from the stores and the engine.
type ConnectorAuthorizer struct {
	authz        *Authorizer
	org          OrgStore
	transactions TransactionStore
	logger       logger.Logger
}

func NewConnectorAuthorizer(authz *Authorizer, org OrgStore, transactions TransactionStore, opts ...ConnectorOption) *ConnectorAuthorizer {
	c := &ConnectorAuthorizer{
		authz:        authz,
		org:          org,
		transactions: transactions,
		logger:       logger.NewNullLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// stationFacts holds the inputs shared by every connector of a station.
type stationFacts struct {
	in ConnectorInputs
}

func (c *ConnectorAuthorizer) stationFacts(ctx context.Context, actor *Actor, station *ChargingStation, area *SiteArea, site *Site) (*stationFacts, error) {
	if actor == nil {
		return nil, fmt.Errorf("connector authorization: nil actor")
	}
	if station == nil {
		return nil, fmt.Errorf("connector authorization: nil station")
	}
	in := ConnectorInputs{OrgActive: actor.OrganizationActive(), AccessControlEnabled: true}
	if in.OrgActive {
		var err error
		if area, site, err = resolveHierarchy(ctx, c.org, station, area, site); err != nil {
			return nil, err
		}
		in.AllowAllToStop = site.AllowAllUsersToStop
		member, err := c.org.IsUserMemberOfSite(ctx, site, actor.ID)
		if err != nil {
			return nil, fmt.Errorf("site membership of user %q: %w", actor.ID, err)
		}
		in.AssignedToSite = member
	}
	if area != nil {
		in.AccessControlEnabled = area.AccessControl
	}
	siteID := ""
	if site != nil {
		siteID = site.ID
	}
	in.BaseStart = c.authz.CanStartTransaction(ctx, actor, siteID)
	in.BaseStop = c.authz.CanStopTransaction(ctx, actor, siteID)
	return &stationFacts{in: in}, nil
}

// sameUser reports whether actor started the connector's active transaction.
func (c *ConnectorAuthorizer) sameUser(ctx context.Context, actor *Actor, station *ChargingStation, conn *Connector) (bool, error) {
	if conn.ActiveTransactionID == 0 {
		return false, nil
	}
	tx, err := c.transactions.FindTransaction(ctx, station.TenantID, conn.ActiveTransactionID)
	if err != nil {
		return false, fmt.Errorf("find transaction %d: %w", conn.ActiveTransactionID, err)
	}
	if tx == nil {
		ierr := &InconsistentStateError{
			TenantID: station.TenantID,
			Entity:   EntityTransaction,
			ID:       fmt.Sprint(conn.ActiveTransactionID),
			Detail:   fmt.Sprintf("referenced by connector %d of charging station %q", conn.ID, station.ID),
		}
		c.logger.Error("active transaction not found",
			"tenant", station.TenantID,
			"station", station.ID,
			"connector", conn.ID,
			"transaction", conn.ActiveTransactionID,
			"actor", actor.ID,
		)
		return false, ierr
	}
	return tx.HasUser() && tx.UserID == actor.ID, nil
}

// Compute returns the capability flags of one connector. area and site may be nil;
// they are looked up when the organization component is active.
func (c *ConnectorAuthorizer) Compute(ctx context.Context, actor *Actor, station *ChargingStation, conn *Connector, area *SiteArea, site *Site) (ConnectorFlags, error) {
	if conn == nil {
		return ConnectorFlags{}, fmt.Errorf("connector authorization: nil connector")
	}
	facts, err := c.stationFacts(ctx, actor, station, area, site)
	if err != nil {
		return ConnectorFlags{}, err
	}
	return c.computeWith(ctx, actor, station, conn, facts)
}

func (c *ConnectorAuthorizer) computeWith(ctx context.Context, actor *Actor, station *ChargingStation, conn *Connector, facts *stationFacts) (ConnectorFlags, error) {
	in := facts.in
	same, err := c.sameUser(ctx, actor, station, conn)
	if err != nil {
		return ConnectorFlags{}, err
	}
	in.SameUserAsTransaction = same
	flags := ApplyConnectorTable(actor.Role, in)
	flags.ConnectorID = conn.ID
	return flags, nil
}

// ComputeAll returns flags for every connector of station, in connector order. The
// hierarchy and base permissions are resolved once; transactions are fetched in
// parallel.
func (c *ConnectorAuthorizer) ComputeAll(ctx context.Context, actor *Actor, station *ChargingStation, area *SiteArea, site *Site) ([]ConnectorFlags, error) {
	facts, err := c.stationFacts(ctx, actor, station, area, site)
	if err != nil {
		return nil, err
	}
	out := make([]ConnectorFlags, len(station.Connectors))
	g, gctx := errgroup.WithContext(ctx)
	for i := range station.Connectors {
		conn := &station.Connectors[i]
		g.Go(func() error {
			flags, err := c.computeWith(gctx, actor, station, conn, facts)
			if err != nil {
				return err
			}
			out[i] = flags
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
