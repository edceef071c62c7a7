package conf

const (
	DefaultPathPrefix = "/api/admission"
)

type Local struct {
	PathPrefix string
}

func (l Local) GetPathPrefix() string {
	if l.PathPrefix == "" {
		return DefaultPathPrefix
	}
	return l.PathPrefix
}
