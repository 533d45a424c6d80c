package spanz

import "strconv"

// Priority is a trace-level sampling decision.
type Priority int

// Sampling priorities. Values below PriorityAutoKeep drop the trace.
const (
	PriorityUserReject Priority = -1
	PriorityAutoReject Priority = 0
	PriorityAutoKeep   Priority = 1
	PriorityUserKeep   Priority = 2
)

// Valid reports whether p is one of the known priorities.
func (p Priority) Valid() bool {
	return p >= PriorityUserReject && p <= PriorityUserKeep
}

// Keep reports whether the priority retains the trace.
func (p Priority) Keep() bool {
	return p >= PriorityAutoKeep
}

// String returns the wire form of the priority.
func (p Priority) String() string {
	return strconv.Itoa(int(p))
}

// Mechanism records what produced a sampling decision. It is propagated in
// the decision maker tag.
type Mechanism int

// Sampling mechanisms.
const (
	MechanismDefault       Mechanism = 0
	MechanismAgent         Mechanism = 1
	MechanismRule          Mechanism = 3
	MechanismManual        Mechanism = 4
	MechanismAppSec        Mechanism = 5
	MechanismSpan          Mechanism = 8
	MechanismRemoteUser    Mechanism = 11
	MechanismRemoteDynamic Mechanism = 12
)

// decisionMaker returns the propagated form of the mechanism.
func (m Mechanism) decisionMaker() string {
	return "-" + strconv.Itoa(int(m))
}

// Tag keys with special meaning to the tracer.
const (
	TagServiceName      = "service.name"
	TagResourceName     = "resource.name"
	TagSpanType         = "span.type"
	TagManualKeep       = "manual.keep"
	TagManualDrop       = "manual.drop"
	TagSamplingPriority = "sampling.priority"
	TagError            = "error"
	TagErrorType        = "error.type"
	TagErrorMsg         = "error.message"
	TagErrorStack       = "error.stack"
)

// Internal tags written by the tracer.
const (
	keyPropagatedPrefix    = "_dd.p."
	keyDecisionMaker       = "_dd.p.dm"
	keyTraceIDHigh         = "_dd.p.tid"
	keyParentID            = "_dd.parent_id"
	keyPropagationError    = "_dd.propagation_error"
	keyOrigin              = "_dd.origin"
	keyHostname            = "_dd.hostname"
	keyBaseService         = "_dd.base_service"
	keyTopLevel            = "_dd.top_level"
	keyRulePSR             = "_dd.rule_psr"
	keyLimitPSR            = "_dd.limit_psr"
	keyAgentPSR            = "_dd.agent_psr"
	keySamplingPriorityV1  = "_sampling_priority_v1"
	keySpanSamplingMech    = "_dd.span_sampling.mechanism"
	keySpanSamplingRate    = "_dd.span_sampling.rule_rate"
	keySpanSamplingLimit   = "_dd.span_sampling.max_per_second"
	keyLanguage            = "language"
	keyProcessID           = "process_id"
	keyRuntimeID           = "runtime-id"
	internalErrorOperation = "fs.operation"
)
