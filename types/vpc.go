package types

import "time"

// VPC is the persisted document for a single VPC. One JSON file per VPC is
// stored in the data directory; the file is only ever replaced atomically, so
// readers never observe a partially written document.
type VPC struct {
	Name   string `json:"name"`
	CIDR   string `json:"cidr"`
	Bridge string `json:"bridge"`
	Chain  string `json:"chain"`

	Subnets []Subnet  `json:"subnets"`
	Apps    []App     `json:"apps"`
	Peers   []Peering `json:"peers"`

	// HostIptables is the replay log: the exact tokenized add-form of every
	// host-level filter rule this VPC owns, in insertion order. Teardown
	// replays it in reverse as deletions.
	HostIptables [][]string `json:"host_iptables"`

	NAT      *NATConfig      `json:"nat,omitempty"`
	Policies []AppliedPolicy `json:"policies,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Subnet is one namespace attached to the VPC bridge by a veth pair.
type Subnet struct {
	Name    string `json:"name"`
	CIDR    string `json:"cidr"`
	NS      string `json:"ns"`
	Gateway string `json:"gw"`
	HostIP  string `json:"host_ip"`
	Veth    Veth   `json:"veth"`
}

// Veth names the two ends of a veth pair. The bridge side stays in the host
// namespace mastered to the VPC bridge; the namespace side is moved into the
// subnet's netns and carries the host IP.
type Veth struct {
	Bridge    string `json:"bridge"`
	Namespace string `json:"namespace"`
}

// Peering records one side of a bridge-to-bridge link. Both VPC documents
// carry a mirror record naming the other as PeerVPC; LocalVeth is the end
// mastered to this VPC's bridge.
type Peering struct {
	PeerVPC    string   `json:"peer_vpc"`
	LocalVeth  string   `json:"local_veth"`
	RemoteVeth string   `json:"remote_veth"`
	AllowCIDRs []string `json:"allow_cidrs"`
}

// App is a deployed test workload: a detached HTTP listener inside a subnet
// namespace.
type App struct {
	ID        string    `json:"id"`
	NS        string    `json:"ns"`
	Port      int       `json:"port"`
	PID       int       `json:"pid"`
	Cmd       []string  `json:"cmd"`
	LogPath   string    `json:"log_path"`
	StartedAt time.Time `json:"started_at"`
}

// NATConfig records the egress interface and which subnets have
// source-address translation active.
type NATConfig struct {
	Interface string   `json:"interface"`
	Subnets   []string `json:"subnets"`
}

// AppliedPolicy records a policy that was applied to a subnet.
type AppliedPolicy struct {
	Subnet    string    `json:"subnet"`
	Policy    Policy    `json:"policy"`
	AppliedAt time.Time `json:"applied_at"`
}

// FindSubnet returns the subnet with the given name, or nil.
func (v *VPC) FindSubnet(name string) *Subnet {
	for i := range v.Subnets {
		if v.Subnets[i].Name == name {
			return &v.Subnets[i]
		}
	}
	return nil
}

// FindSubnetByCIDR returns the subnet with the given CIDR, or nil.
func (v *VPC) FindSubnetByCIDR(cidr string) *Subnet {
	for i := range v.Subnets {
		if v.Subnets[i].CIDR == cidr {
			return &v.Subnets[i]
		}
	}
	return nil
}

// FindPeering returns the peering record naming peer, or nil.
func (v *VPC) FindPeering(peer string) *Peering {
	for i := range v.Peers {
		if v.Peers[i].PeerVPC == peer {
			return &v.Peers[i]
		}
	}
	return nil
}
