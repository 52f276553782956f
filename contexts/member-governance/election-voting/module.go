package electionvoting

import (
	"log/slog"
	"time"

	httpadapter "intellicash/contexts/member-governance/election-voting/adapters/http"
	"intellicash/contexts/member-governance/election-voting/adapters/memory"
	"intellicash/contexts/member-governance/election-voting/application/commands"
	"intellicash/contexts/member-governance/election-voting/application/policy"
	"intellicash/contexts/member-governance/election-voting/application/queries"
	"intellicash/contexts/member-governance/election-voting/application/security"
	"intellicash/contexts/member-governance/election-voting/application/workers"
	"intellicash/contexts/member-governance/election-voting/ports"
)

type Module struct {
	Handler httpadapter.Handler
	Closer  workers.ElectionCloser
	Store   *memory.Store
}

type Dependencies struct {
	Elections ports.ElectionRepository
	Ballots   ports.BallotRepository
	Results   ports.ResultRepository
	Audit     ports.AuditSink
	RateStore ports.RateStore
	Lock      ports.RecomputeLock
	Clock     ports.Clock
	IDGen     ports.IDGenerator
	Security  security.Config
	LockTTL   time.Duration
	Logger    *slog.Logger
}

func NewModule(deps Dependencies) Module {
	gate := security.Gate{
		Ballots: deps.Ballots,
		Store:   deps.RateStore,
		Audit:   deps.Audit,
		Clock:   deps.Clock,
		IDGen:   deps.IDGen,
		Config:  deps.Security,
		Logger:  deps.Logger,
	}
	enforcer := policy.Enforcer{
		Elections: deps.Elections,
		Ballots:   deps.Ballots,
		Audit:     deps.Audit,
		Clock:     deps.Clock,
		IDGen:     deps.IDGen,
		Logger:    deps.Logger,
	}
	voteUseCase := commands.VoteUseCase{
		Elections: deps.Elections,
		Ballots:   deps.Ballots,
		Audit:     deps.Audit,
		Gate:      gate,
		Policy:    enforcer,
		Clock:     deps.Clock,
		IDGen:     deps.IDGen,
		Logger:    deps.Logger,
	}
	resultsUseCase := queries.ResultsUseCase{
		Elections: deps.Elections,
		Ballots:   deps.Ballots,
		Results:   deps.Results,
		Audit:     deps.Audit,
		Lock:      deps.Lock,
		LockTTL:   deps.LockTTL,
		Clock:     deps.Clock,
		IDGen:     deps.IDGen,
		Logger:    deps.Logger,
	}
	return Module{
		Handler: httpadapter.Handler{
			Votes:   voteUseCase,
			Results: resultsUseCase,
			Audit:   deps.Audit,
			Logger:  deps.Logger,
		},
		Closer: workers.ElectionCloser{
			Elections: deps.Elections,
			Results:   resultsUseCase,
			Clock:     deps.Clock,
			Logger:    deps.Logger,
		},
	}
}

func NewInMemoryModule(logger *slog.Logger) Module {
	store := memory.NewStore()
	module := NewModule(Dependencies{
		Elections: store,
		Ballots:   store,
		Results:   store,
		Audit:     store,
		RateStore: store,
		Lock:      store,
		Clock:     store,
		IDGen:     store,
		Logger:    logger,
	})
	module.Store = store
	return module
}
