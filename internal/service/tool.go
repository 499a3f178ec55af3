package service

import (
	"log"

	"github.com/xiaot623/chatd/internal/domain"
)

// ListToolServers lists tool servers with their tools and flags.
func (s *Service) ListToolServers() []domain.ToolServer {
	return s.tools.ListServers()
}

// SetToolServerEnabled enables or disables a tool server.
func (s *Service) SetToolServerEnabled(name string, enabled bool) error {
	if err := s.tools.SetServerEnabled(name, enabled); err != nil {
		return err
	}
	log.Printf("Tool server %s enabled=%t", name, enabled)
	return nil
}

// SetToolEnabled enables or disables one tool of a server.
func (s *Service) SetToolEnabled(server, tool string, enabled bool) error {
	if err := s.tools.SetToolEnabled(server, tool, enabled); err != nil {
		return err
	}
	log.Printf("Tool %s/%s enabled=%t", server, tool, enabled)
	return nil
}

// EnabledTools lists the tools currently eligible for advertisement.
func (s *Service) EnabledTools(serverFilter ...string) []domain.ToolDescriptor {
	return s.tools.EnabledTools(serverFilter...)
}
