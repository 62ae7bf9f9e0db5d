// Package registry implements Consul-backed service discovery and a base
// HTTP client for the inference microservices the pipeline calls out to
// (autoshot, ASR, image/text embedding, LLM captioning).
package registry

import (
	"context"
	"fmt"

	consulapi "github.com/hashicorp/consul/api"
	"go.uber.org/zap"
)

// ServiceInfo describes one healthy service instance.
type ServiceInfo struct {
	ServiceID   string
	ServiceName string
	Address     string
	Port        int
	Tags        []string
	Meta        map[string]string
}

// ServiceRegistry resolves healthy instances of named services via Consul.
type ServiceRegistry struct {
	client *consulapi.Client
	log    *zap.Logger
}

func New(addr string, log *zap.Logger) (*ServiceRegistry, error) {
	cfg := consulapi.DefaultConfig()
	cfg.Address = addr
	client, err := consulapi.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("registry: consul client: %w", err)
	}
	return &ServiceRegistry{client: client, log: log}, nil
}

// GetHealthyService returns one instance of serviceName that is currently
// passing its health checks, or nil if none are. Resolved discrepancy
// (DESIGN.md #3): passingOnly is actually applied, unlike the Python
// registry's get_healthy_service, which discovered all instances
// unconditionally and happened to return the first regardless of health.
func (r *ServiceRegistry) GetHealthyService(ctx context.Context, serviceName string) (*ServiceInfo, error) {
	entries, _, err := r.client.Health().Service(serviceName, "", true, &consulapi.QueryOptions{})
	if err != nil {
		return nil, fmt.Errorf("registry: health query for %s: %w", serviceName, err)
	}
	if len(entries) == 0 {
		r.log.Warn("no healthy service instance found", zap.String("service", serviceName))
		return nil, nil
	}

	e := entries[0]
	address := e.Service.Address
	if address == "" {
		address = e.Node.Address
	}
	return &ServiceInfo{
		ServiceID:   e.Service.ID,
		ServiceName: e.Service.Service,
		Address:     address,
		Port:        e.Service.Port,
		Tags:        e.Service.Tags,
		Meta:        e.Service.Meta,
	}, nil
}

// RegisterService registers this process as an instance of serviceName with
// an HTTP health check.
func (r *ServiceRegistry) RegisterService(serviceID, serviceName, address string, port int, healthCheckURL string) error {
	reg := &consulapi.AgentServiceRegistration{
		ID:      serviceID,
		Name:    serviceName,
		Address: address,
		Port:    port,
	}
	if healthCheckURL != "" {
		reg.Check = &consulapi.AgentServiceCheck{
			HTTP:                           healthCheckURL,
			Interval:                       "10s",
			Timeout:                        "5s",
			DeregisterCriticalServiceAfter: "30s",
		}
	}
	return r.client.Agent().ServiceRegister(reg)
}

// DeregisterService removes a previously registered instance.
func (r *ServiceRegistry) DeregisterService(serviceID string) error {
	return r.client.Agent().ServiceDeregister(serviceID)
}
