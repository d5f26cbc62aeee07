package directory

// Default entity names for a SuccessFactors-style directory.
const (
	DefaultPersonEntity     = "User"
	DefaultEmploymentEntity = "EmpJob"
	DefaultTypeTag          = "SFOData.User"
)

// Config names the entity sets and type tag the resolver and normalizer use.
// It is loaded once at start and passed to constructors.
type Config struct {
	// PersonEntity is the entity set holding person records.
	PersonEntity string
	// EmploymentEntity is the secondary entity set searched by employee ID.
	EmploymentEntity string
	// TypeTag is the OData type discriminator stamped on every payload.
	TypeTag string
	// RejectAmbiguous turns multi-record search matches into
	// AmbiguousMatchError instead of taking the first result.
	RejectAmbiguous bool
}

// WithDefaults fills empty names with the SuccessFactors defaults.
func (c Config) WithDefaults() Config {
	if c.PersonEntity == "" {
		c.PersonEntity = DefaultPersonEntity
	}
	if c.EmploymentEntity == "" {
		c.EmploymentEntity = DefaultEmploymentEntity
	}
	if c.TypeTag == "" {
		c.TypeTag = DefaultTypeTag
	}
	return c
}
