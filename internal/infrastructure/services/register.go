package services

import "IssueSync/internal/service"

// Register adds every bundled service to registry.
func Register(registry *service.Registry) {
	registry.Register(LinearDescriptor())
	registry.Register(TodoistDescriptor())
	registry.Register(ScrapeDescriptor())
}
