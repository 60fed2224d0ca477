package server

// Service groups the methods registered under one service name
type Service struct {
	name    string
	methods map[string]*MethodDescriptor
	order   []*MethodDescriptor
}

// newService creates an empty service
func newService(name string) *Service {
	return &Service{
		name:    name,
		methods: make(map[string]*MethodDescriptor),
	}
}

// add adds a method, names are unique (checked at registration)
func (s *Service) add(desc *MethodDescriptor) {
	s.methods[desc.Method] = desc
	s.order = append(s.order, desc)
}

// Name returns the name of the service
func (s *Service) Name() string {
	return s.name
}

// Method returns the descriptor of a method
func (s *Service) Method(name string) (*MethodDescriptor, bool) {
	desc, ok := s.methods[name]
	return desc, ok
}

// Methods returns all methods in registration order
func (s *Service) Methods() []*MethodDescriptor {
	return append([]*MethodDescriptor(nil), s.order...)
}
