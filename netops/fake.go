package netops

// FakeProber is a Prober answering from in-memory sets. It backs unit tests
// for this package and for the orchestrator.
type FakeProber struct {
	Links      map[string]bool
	Up         map[string]bool
	Masters    map[string]string // link → master
	Addrs      map[string]string // link → CIDR
	Namespaces map[string]bool
}

var _ Prober = (*FakeProber)(nil)

// NewFakeProber returns an empty FakeProber.
func NewFakeProber() *FakeProber {
	return &FakeProber{
		Links:      map[string]bool{},
		Up:         map[string]bool{},
		Masters:    map[string]string{},
		Addrs:      map[string]string{},
		Namespaces: map[string]bool{},
	}
}

// LinkExists implements Prober.
func (f *FakeProber) LinkExists(name string) bool { return f.Links[name] }

// LinkIsUp implements Prober.
func (f *FakeProber) LinkIsUp(name string) bool { return f.Up[name] }

// LinkHasMaster implements Prober.
func (f *FakeProber) LinkHasMaster(name, master string) bool { return f.Masters[name] == master }

// LinkHasAddr implements Prober.
func (f *FakeProber) LinkHasAddr(name, addrCIDR string) bool { return f.Addrs[name] == addrCIDR }

// NamespaceExists implements Prober.
func (f *FakeProber) NamespaceExists(name string) bool { return f.Namespaces[name] }

// ListLinks implements Prober.
func (f *FakeProber) ListLinks() ([]string, error) {
	var out []string
	for name, ok := range f.Links {
		if ok {
			out = append(out, name)
		}
	}
	return out, nil
}

// ListNamespaces implements Prober.
func (f *FakeProber) ListNamespaces() ([]string, error) {
	var out []string
	for name, ok := range f.Namespaces {
		if ok {
			out = append(out, name)
		}
	}
	return out, nil
}
