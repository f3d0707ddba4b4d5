package scope

import "github.com/latticesched/scope/internal/proc"

var optOutTag = proc.RegisterVariant("test-opt-out-proc")

// optOutProc is a user-defined processor variant with DefaultEnabled
// hard-wired to false, standing in for spec.md §8's OptOutProc example.
type optOutProc struct {
	WorkerID proc.WorkerID
}

func (p optOutProc) Tag() *proc.Tag         { return optOutTag }
func (p optOutProc) Worker() proc.WorkerID  { return p.WorkerID }
func (p optOutProc) Parent() proc.Processor { return proc.OSProc{WorkerID: p.WorkerID} }
func (p optOutProc) DefaultEnabled() bool   { return false }
func (p optOutProc) Equal(o proc.Processor) bool {
	other, ok := o.(optOutProc)
	return ok && other.WorkerID == p.WorkerID
}
func (p optOutProc) String() string { return "optout" }
