package sys

// Cmd is the first argument to the bpf() syscall multiplexer.
//
// Values transcribed from bpf_cmd in linux/bpf.h; only the commands this
// loader issues are named.
type Cmd uint32

const (
	BPF_MAP_CREATE Cmd = iota
	BPF_MAP_LOOKUP_ELEM
	BPF_MAP_UPDATE_ELEM
	BPF_MAP_DELETE_ELEM
	BPF_MAP_GET_NEXT_KEY
	BPF_PROG_LOAD
	BPF_OBJ_PIN
	BPF_OBJ_GET
	BPF_PROG_ATTACH
	BPF_PROG_DETACH
	BPF_PROG_TEST_RUN
	BPF_PROG_GET_NEXT_ID
	BPF_MAP_GET_NEXT_ID
	BPF_PROG_GET_FD_BY_ID
	BPF_MAP_GET_FD_BY_ID
	BPF_OBJ_GET_INFO_BY_FD
)

// MapType mirrors bpf_map_type. Only the values the compatibility gate and
// map manager reason about are named; unknown values pass through the
// syscall unmodified.
type MapType uint32

const (
	BPF_MAP_TYPE_UNSPEC MapType = iota
	BPF_MAP_TYPE_HASH
	BPF_MAP_TYPE_ARRAY
	BPF_MAP_TYPE_PROG_ARRAY
	BPF_MAP_TYPE_PERF_EVENT_ARRAY
	BPF_MAP_TYPE_PERCPU_HASH
	BPF_MAP_TYPE_PERCPU_ARRAY
	BPF_MAP_TYPE_STACK_TRACE
	BPF_MAP_TYPE_CGROUP_ARRAY
	BPF_MAP_TYPE_LRU_HASH
	BPF_MAP_TYPE_LRU_PERCPU_HASH
	BPF_MAP_TYPE_LPM_TRIE
	BPF_MAP_TYPE_ARRAY_OF_MAPS
	BPF_MAP_TYPE_HASH_OF_MAPS
	BPF_MAP_TYPE_DEVMAP
	BPF_MAP_TYPE_SOCKMAP
	BPF_MAP_TYPE_CPUMAP
	BPF_MAP_TYPE_XSKMAP
	BPF_MAP_TYPE_SOCKHASH
	BPF_MAP_TYPE_CGROUP_STORAGE
	BPF_MAP_TYPE_REUSEPORT_SOCKARRAY
	BPF_MAP_TYPE_PERCPU_CGROUP_STORAGE
	BPF_MAP_TYPE_QUEUE
	BPF_MAP_TYPE_STACK
	BPF_MAP_TYPE_SK_STORAGE
	BPF_MAP_TYPE_DEVMAP_HASH
	BPF_MAP_TYPE_STRUCT_OPS
	BPF_MAP_TYPE_RINGBUF
)

// ProgType mirrors bpf_prog_type, restricted to the program types named by
// the section-name table in the program manager.
type ProgType uint32

const (
	BPF_PROG_TYPE_UNSPEC ProgType = iota
	BPF_PROG_TYPE_SOCKET_FILTER
	BPF_PROG_TYPE_KPROBE
	BPF_PROG_TYPE_SCHED_CLS
	BPF_PROG_TYPE_SCHED_ACT
	BPF_PROG_TYPE_TRACEPOINT
	BPF_PROG_TYPE_XDP
	BPF_PROG_TYPE_PERF_EVENT
	BPF_PROG_TYPE_CGROUP_SKB
	BPF_PROG_TYPE_CGROUP_SOCK
	BPF_PROG_TYPE_LWT_IN
	BPF_PROG_TYPE_LWT_OUT
	BPF_PROG_TYPE_LWT_XMIT
	BPF_PROG_TYPE_SOCK_OPS
	BPF_PROG_TYPE_SK_SKB
	BPF_PROG_TYPE_CGROUP_DEVICE
	BPF_PROG_TYPE_SK_MSG
	BPF_PROG_TYPE_RAW_TRACEPOINT
	BPF_PROG_TYPE_CGROUP_SOCK_ADDR
	BPF_PROG_TYPE_LWT_SEG6LOCAL
	BPF_PROG_TYPE_LIRC_MODE2
	BPF_PROG_TYPE_SK_REUSEPORT
	BPF_PROG_TYPE_FLOW_DISSECTOR
	BPF_PROG_TYPE_CGROUP_SYSCTL
	BPF_PROG_TYPE_RAW_TRACEPOINT_WRITABLE
	BPF_PROG_TYPE_CGROUP_SOCKOPT
)

// AttachType mirrors bpf_attach_type, restricted to the values the
// section-name table can produce.
type AttachType uint32

const (
	BPF_CGROUP_INET_INGRESS AttachType = iota
	BPF_CGROUP_INET_EGRESS
	BPF_CGROUP_INET_SOCK_CREATE
	BPF_CGROUP_SOCK_OPS
	BPF_SK_SKB_STREAM_PARSER
	BPF_SK_SKB_STREAM_VERDICT
	BPF_CGROUP_DEVICE
	BPF_SK_MSG_VERDICT
	BPF_CGROUP_INET4_BIND
	BPF_CGROUP_INET6_BIND
	BPF_CGROUP_INET4_CONNECT
	BPF_CGROUP_INET6_CONNECT
	BPF_CGROUP_INET4_POST_BIND
	BPF_CGROUP_INET6_POST_BIND
	BPF_CGROUP_UDP4_SENDMSG
	BPF_CGROUP_UDP6_SENDMSG
	BPF_LIRC_MODE2
	BPF_FLOW_DISSECTOR
	BPF_CGROUP_SYSCTL
	BPF_CGROUP_UDP4_RECVMSG
	BPF_CGROUP_UDP6_RECVMSG
	BPF_CGROUP_GETSOCKOPT
	BPF_CGROUP_SETSOCKOPT
	BPF_CGROUP_INET_SOCK_RELEASE
)

// MapCreateAttr is the bpf_attr union member for BPF_MAP_CREATE.
//
// Field order and sizes follow the kernel layout; unused fields are left
// zero, matching the "all unused bytes MUST be zero" contract of the
// syscall gateway.
type MapCreateAttr struct {
	MapType        MapType
	KeySize        uint32
	ValueSize      uint32
	MaxEntries     uint32
	MapFlags       MapFlags
	InnerMapFd     uint32
	NumaNode       uint32
	MapName        ObjName
	MapIfIndex     uint32
	BtfFd          uint32
	BtfKeyTypeId   uint32
	BtfValueTypeId uint32
}

// MapElemAttr is the bpf_attr union member shared by BPF_MAP_LOOKUP_ELEM,
// BPF_MAP_UPDATE_ELEM, BPF_MAP_DELETE_ELEM and BPF_MAP_GET_NEXT_KEY.
type MapElemAttr struct {
	MapFd uint32
	Key   Pointer
	Value Pointer // union with NextKey
	Flags uint64
}

// ProgLoadAttr is the bpf_attr union member for BPF_PROG_LOAD.
type ProgLoadAttr struct {
	ProgType           ProgType
	InsnCnt            uint32
	Insns              Pointer
	License            Pointer
	LogLevel           uint32
	LogSize            uint32
	LogBuf             Pointer
	KernVersion        uint32
	ProgFlags          uint32
	ProgName           ObjName
	ProgIfIndex        uint32
	ExpectedAttachType AttachType
	ProgBtfFd          uint32
	FuncInfoRecSize    uint32
	FuncInfo           Pointer
	FuncInfoCnt        uint32
	LineInfoRecSize    uint32
	LineInfo           Pointer
	LineInfoCnt        uint32
	AttachBtfId        uint32
	AttachProgFd       uint32
}

// ObjPinAttr is the bpf_attr union member shared by BPF_OBJ_PIN and
// BPF_OBJ_GET.
type ObjPinAttr struct {
	Pathname  Pointer
	BpfFd     uint32
	FileFlags uint32
}

// ProgAttachAttr is the bpf_attr union member shared by BPF_PROG_ATTACH and
// BPF_PROG_DETACH.
type ProgAttachAttr struct {
	TargetFd    uint32
	AttachBpfFd uint32
	AttachType  AttachType
	AttachFlags uint32
	ReplaceFd   uint32
}

// ObjGetInfoByFdAttr is the bpf_attr union member for
// BPF_OBJ_GET_INFO_BY_FD.
type ObjGetInfoByFdAttr struct {
	BpfFd   uint32
	InfoLen uint32
	Info    Pointer
}

// MapGetFdByIdAttr is the bpf_attr union member shared by the *_GET_FD_BY_ID
// commands.
type MapGetFdByIdAttr struct {
	Id        uint32
	NextId    uint32
	OpenFlags uint32
}

// MapInfo is the struct bpf_map_info returned by BPF_OBJ_GET_INFO_BY_FD for
// a map fd. Used by the map manager to validate the shape of a reused,
// already-pinned map (spec: "shape validation").
type MapInfo struct {
	Type                  uint32
	Id                    uint32
	KeySize               uint32
	ValueSize             uint32
	MaxEntries            uint32
	MapFlags              uint32
	Name                  ObjName
	Ifindex               uint32
	BtfVmlinuxValueTypeId uint32
	NetnsDev              uint64
	NetnsIno              uint64
	BtfId                 uint32
	BtfKeyTypeId          uint32
	BtfValueTypeId        uint32
}
