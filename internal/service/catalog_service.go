package service

import (
	"sync"

	"carshine/internal/models"

	"github.com/rs/zerolog"
)

// CatalogService serves the fixed detailing service list. The catalog comes
// from config with the built-in defaults as fallback.
type CatalogService struct {
	logger      *zerolog.Logger
	services    []models.Service
	servicesMap map[string]models.Service
	mu          sync.RWMutex
}

func NewCatalogService(services []models.Service, logger *zerolog.Logger) *CatalogService {
	if len(services) == 0 {
		services = models.DefaultServices()
	}
	servicesMap := make(map[string]models.Service)
	for _, svc := range services {
		servicesMap[svc.ID] = svc
	}

	return &CatalogService{
		logger:      logger,
		services:    services,
		servicesMap: servicesMap,
	}
}

func (s *CatalogService) Services() []models.Service {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.services
}

func (s *CatalogService) ServiceByID(id string) (*models.Service, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	svc, ok := s.servicesMap[id]
	if !ok {
		return nil, false
	}
	return &svc, true
}

// Reload swaps the catalog, for config reload paths.
func (s *CatalogService) Reload(services []models.Service) {
	if len(services) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.services = services
	s.servicesMap = make(map[string]models.Service)
	for _, svc := range services {
		s.servicesMap[svc.ID] = svc
	}
}
