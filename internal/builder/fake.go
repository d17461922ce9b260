package builder

import "context"

// Fake is a Builder double for tests: Outcome/Err are returned verbatim,
// and every call is recorded in Calls.
type Fake struct {
	Outcome *Outcome
	Err     error
	Delay   func(ctx context.Context) error // optional, simulates a slow build
	Calls   []FakeCall
}

type FakeCall struct {
	Owner, Repo, ContainerName, ContainerSrc string
}

func (f *Fake) Build(ctx context.Context, owner, repo, containerName, containerSrc string) (*Outcome, error) {
	f.Calls = append(f.Calls, FakeCall{owner, repo, containerName, containerSrc})
	if f.Delay != nil {
		if err := f.Delay(ctx); err != nil {
			return nil, err
		}
	}
	if f.Err != nil {
		return nil, f.Err
	}
	return f.Outcome, nil
}
