package policy

// File is the on-disk layout of the site policy file.
//
//	keep_fragment_hosts:
//	  - app.example.com
//	ttl:
//	  docs.example.com: 1h
//	  "*.news.example": 2m
type File struct {
	KeepFragmentHosts []string          `yaml:"keep_fragment_hosts"`
	TTL               map[string]string `yaml:"ttl,omitempty"`
}
