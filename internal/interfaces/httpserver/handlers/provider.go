package handlers

import (
	"github.com/rs/zerolog"

	"fleethub/internal/config"
	"fleethub/internal/domain/crashdump"
	"fleethub/internal/domain/firmware"
	"fleethub/internal/infrastructure/notifier"
	"fleethub/internal/infrastructure/repository/registry"
)

// Provider wires HTTP handlers.
type Provider struct {
	Firmware *FirmwareHandler
	Coredump *CoredumpHandler
	Registry *RegistryHandler
}

func NewProvider(
	cfg *config.Config,
	firmwareService *firmware.Service,
	coredumpService *crashdump.Service,
	registryRepo *registry.Repository,
	events *notifier.Notifier,
	log zerolog.Logger,
) *Provider {
	return &Provider{
		Firmware: NewFirmwareHandler(cfg, firmwareService, events, log),
		Coredump: NewCoredumpHandler(cfg, coredumpService, events, log),
		Registry: NewRegistryHandler(registryRepo, log),
	}
}
