package services

import (
	"github.com/agroplatform/dictionary-service/internal/cache"
	"github.com/agroplatform/dictionary-service/internal/events"
	"github.com/agroplatform/dictionary-service/internal/lock"
	"github.com/agroplatform/dictionary-service/internal/repositories"
	"github.com/agroplatform/dictionary-service/internal/utils"
	"github.com/agroplatform/dictionary-service/internal/validator"
)

// ServiceManager wires the service layer together and hands the individual
// services to the HTTP layer.
type ServiceManager interface {
	Dictionary() DictionaryService
	Import() ImportService
	Stack() StackService
	Parser() *FileParser
}

type serviceManager struct {
	dictionary DictionaryService
	importSvc  ImportService
	stack      StackService
	parser     *FileParser
}

func NewServiceManager(
	repo repositories.Repository,
	v *validator.Validator,
	locker lock.DictionaryLocker,
	cacheService cache.CacheService,
	publisher events.EventPublisher,
	logger utils.Logger,
) ServiceManager {
	stack := NewStackService(repo, publisher, logger)
	return &serviceManager{
		dictionary: NewDictionaryService(repo, v, cacheService, logger),
		importSvc:  NewImportService(repo, stack, v, locker, cacheService, publisher, logger),
		stack:      stack,
		parser:     NewFileParser(),
	}
}

func (sm *serviceManager) Dictionary() DictionaryService { return sm.dictionary }
func (sm *serviceManager) Import() ImportService         { return sm.importSvc }
func (sm *serviceManager) Stack() StackService           { return sm.stack }
func (sm *serviceManager) Parser() *FileParser           { return sm.parser }
