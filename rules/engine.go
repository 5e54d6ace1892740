package rules

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/cel-go/cel"
)

// ActionExecutor performs the external effect a fired rule requests.
// The engine does not interpret the result beyond deciding whether to
// record the execution.
type ActionExecutor interface {
	Execute(ctx context.Context, rule Rule) error
}

// ActionExecutorFunc adapts a function to ActionExecutor.
type ActionExecutorFunc func(ctx context.Context, rule Rule) error

func (f ActionExecutorFunc) Execute(ctx context.Context, rule Rule) error {
	return f(ctx, rule)
}

// RecordMode controls when a firing is recorded relative to the action.
type RecordMode int

const (
	// RecordAfterAction records only after the executor succeeds: a
	// failed action leaves the rule eligible to fire again
	// (at-least-once).
	RecordAfterAction RecordMode = iota

	// RecordBeforeAction records before invoking the executor: a failed
	// action is not retried by a later evaluation of the same snapshot
	// (at-most-once).
	RecordBeforeAction
)

// FireResult is the outcome of evaluating one rule against a snapshot.
type FireResult struct {
	RuleID   string
	RuleName string
	Fired    bool
	Executed bool
	Err      error
}

// Engine owns the shared rule collection: trigger evaluation, action
// dispatch, execution bookkeeping, and the CEL program cache for
// condition triggers. Safe for concurrent use; the read-compute-write
// cycle of a firing is serialized per rule.
type Engine struct {
	store    RuleStore
	cache    RulesCache
	mode     RecordMode
	env      *cel.Env
	programs map[string]cel.Program // ruleID -> compiled condition
	mu       sync.RWMutex           // guards programs

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex // ruleID -> write-back lock
}

// Option configures an Engine.
type Option func(*Engine)

// WithRecordMode sets when executions are recorded relative to action
// success. Default is RecordAfterAction.
func WithRecordMode(mode RecordMode) Option {
	return func(e *Engine) { e.mode = mode }
}

// WithCache replaces the default in-memory active-rules cache.
func WithCache(cache RulesCache) Option {
	return func(e *Engine) { e.cache = cache }
}

// NewEngine creates an engine over the store and compiles the condition
// triggers of all active rules.
func NewEngine(store RuleStore, opts ...Option) (*Engine, error) {
	env, err := cel.NewEnv(
		cel.Variable("metrics", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("currentStage", cel.StringType),
		cel.Variable("previousStage", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	e := &Engine{
		store:    store,
		cache:    NewInMemoryRulesCache(DefaultCacheConfig()),
		env:      env,
		programs: make(map[string]cel.Program),
		locks:    make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(e)
	}

	if err := e.compileAll(); err != nil {
		return nil, fmt.Errorf("failed to compile rules: %w", err)
	}
	return e, nil
}

// compileAll compiles condition triggers for all active rules and primes
// the active-rules cache.
func (e *Engine) compileAll() error {
	active, err := e.store.ListActive()
	if err != nil {
		return err
	}
	for _, r := range active {
		if err := e.compileCondition(r); err != nil {
			return fmt.Errorf("rule %s: %w", r.ID, err)
		}
	}
	e.cache.Set(active)
	return nil
}

// compileCondition compiles a rule's CEL expression if it carries one.
// Cost-limited so a pathological expression cannot stall an evaluation
// tick.
func (e *Engine) compileCondition(r Rule) error {
	cond, ok := r.Trigger.(ConditionTrigger)
	if !ok {
		return nil
	}

	ast, issues := e.env.Compile(cond.Expression)
	if issues != nil && issues.Err() != nil {
		return fmt.Errorf("compile error: %w", issues.Err())
	}
	prog, err := e.env.Program(ast, cel.CostLimit(1000000))
	if err != nil {
		return fmt.Errorf("program creation error: %w", err)
	}

	e.mu.Lock()
	e.programs[r.ID] = prog
	e.mu.Unlock()
	return nil
}

func (e *Engine) dropProgram(id string) {
	e.mu.Lock()
	delete(e.programs, id)
	e.mu.Unlock()
}

// ShouldFire evaluates a rule's trigger against the snapshot. For
// condition triggers it runs the compiled CEL program; a non-boolean
// result, evaluation error, or missing program evaluates false.
func (e *Engine) ShouldFire(r Rule, snap Context, now time.Time) bool {
	if !r.Enabled || r.Status != StatusActive {
		return false
	}

	if _, ok := r.Trigger.(ConditionTrigger); ok {
		e.mu.RLock()
		prog, exists := e.programs[r.ID]
		e.mu.RUnlock()
		if !exists {
			return false
		}
		out, _, err := prog.Eval(snap.Facts())
		if err != nil {
			return false
		}
		matched, ok := out.Value().(bool)
		return ok && matched
	}

	return ShouldFire(r, snap, now)
}

// ruleLock returns the per-rule write-back mutex, creating it on first
// use. Locks for deleted rules are dropped in DeleteRule.
func (e *Engine) ruleLock(id string) *sync.Mutex {
	e.locksMu.Lock()
	defer e.locksMu.Unlock()
	l, ok := e.locks[id]
	if !ok {
		l = &sync.Mutex{}
		e.locks[id] = l
	}
	return l
}

// Fire evaluates one rule and, if it matches, runs the executor and
// records the execution per the engine's RecordMode. The whole
// read-compute-write cycle is serialized per rule so concurrent firings
// of the same rule cannot lose counter updates.
func (e *Engine) Fire(ctx context.Context, id string, snap Context, exec ActionExecutor) (FireResult, error) {
	lock := e.ruleLock(id)
	lock.Lock()
	defer lock.Unlock()

	rule, err := e.store.Get(id)
	if err != nil {
		return FireResult{RuleID: id}, err
	}

	res := FireResult{RuleID: rule.ID, RuleName: rule.Name}
	if !e.ShouldFire(rule, snap, time.Now()) {
		return res, nil
	}
	res.Fired = true

	record := func() error {
		updated := Execute(rule, time.Now())
		if err := e.store.Update(updated); err != nil {
			return err
		}
		rule = updated
		return nil
	}

	if e.mode == RecordBeforeAction {
		if err := record(); err != nil {
			res.Err = err
			return res, nil
		}
	}

	if err := exec.Execute(ctx, rule); err != nil {
		res.Err = err
		return res, nil
	}
	res.Executed = true

	if e.mode == RecordAfterAction {
		if err := record(); err != nil {
			res.Err = err
		}
	}
	return res, nil
}

// FireAll evaluates every active rule against the snapshot, continuing
// past per-rule failures. Uses the active-rules cache when valid.
func (e *Engine) FireAll(ctx context.Context, snap Context, exec ActionExecutor) ([]FireResult, error) {
	active := e.cache.Get()
	if active == nil {
		var err error
		active, err = e.store.ListActive()
		if err != nil {
			return nil, err
		}
		e.cache.Set(active)
	}

	results := make([]FireResult, 0, len(active))
	for _, r := range active {
		res, err := e.Fire(ctx, r.ID, snap, exec)
		if err != nil {
			// Likely deleted between listing and firing.
			res.Err = err
		}
		results = append(results, res)
	}
	return results, nil
}

// AddRule validates a rule's condition trigger, compiles it, and stores
// the rule. The compiled program is dropped if the store rejects it.
func (e *Engine) AddRule(r Rule) error {
	if _, err := e.store.Get(r.ID); err == nil {
		return fmt.Errorf("rule %s already exists", r.ID)
	}

	if err := e.compileCondition(r); err != nil {
		return fmt.Errorf("rule validation failed: %w", err)
	}
	if err := e.store.Add(r); err != nil {
		e.dropProgram(r.ID)
		return err
	}
	e.cache.Invalidate()
	return nil
}

// UpdateRule recompiles the rule's condition trigger and updates it.
func (e *Engine) UpdateRule(r Rule) error {
	if err := e.compileCondition(r); err != nil {
		return fmt.Errorf("rule validation failed: %w", err)
	}
	if _, ok := r.Trigger.(ConditionTrigger); !ok {
		// Trigger may have changed away from a condition.
		e.dropProgram(r.ID)
	}
	if err := e.store.Update(r); err != nil {
		return err
	}
	e.cache.Invalidate()
	return nil
}

// ToggleRule flips a rule between active and paused, serialized with
// firings of the same rule.
func (e *Engine) ToggleRule(id string) (Rule, error) {
	lock := e.ruleLock(id)
	lock.Lock()
	defer lock.Unlock()

	rule, err := e.store.Get(id)
	if err != nil {
		return Rule{}, err
	}
	toggled := Toggle(rule)
	if err := e.store.Update(toggled); err != nil {
		return Rule{}, err
	}
	e.cache.Invalidate()
	return toggled, nil
}

// DeleteRule removes the rule, its compiled program, and its lock.
func (e *Engine) DeleteRule(id string) error {
	if err := e.store.Delete(id); err != nil {
		return err
	}
	e.dropProgram(id)

	e.locksMu.Lock()
	delete(e.locks, id)
	e.locksMu.Unlock()

	e.cache.Invalidate()
	return nil
}

// GetRule fetches a rule by ID.
func (e *Engine) GetRule(id string) (Rule, error) {
	return e.store.Get(id)
}

// ListRules returns all rules in creation order.
func (e *Engine) ListRules() ([]Rule, error) {
	return e.store.List()
}

// Summary aggregates the full rule set.
func (e *Engine) Summary() (Summary, error) {
	all, err := e.store.List()
	if err != nil {
		return Summary{}, err
	}
	return Summarize(all), nil
}
