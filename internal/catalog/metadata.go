package catalog

// Metadata is the service-level section of the catalog.
type Metadata struct {
	Identification Identification `yaml:"identification"`
	Provider       Provider       `yaml:"provider"`
	Attribution    Attribution    `yaml:"attribution"`
}

type Identification struct {
	Title             Bilingual[string]   `yaml:"title"`
	Abstract          Bilingual[string]   `yaml:"abstract"`
	Keywords          Bilingual[[]string] `yaml:"keywords"`
	Fees              string              `yaml:"fees"`
	AccessConstraints string              `yaml:"accessconstraints"`
	URL               Bilingual[string]   `yaml:"url"`
}

type Provider struct {
	Name    Bilingual[string] `yaml:"name"`
	Role    string            `yaml:"role"`
	Logo    Logo              `yaml:"logo"`
	Contact Contact           `yaml:"contact"`
}

type Logo struct {
	Format string `yaml:"format"`
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`
	Href   string `yaml:"href"`
}

type Contact struct {
	Name         Bilingual[string] `yaml:"name"`
	Position     Bilingual[string] `yaml:"position"`
	Address      Address           `yaml:"address"`
	Phone        Phone             `yaml:"phone"`
	Instructions Bilingual[string] `yaml:"instructions"`
	Hours        Bilingual[string] `yaml:"hours"`
}

type Address struct {
	DeliveryPoint   Bilingual[string] `yaml:"delivery_point"`
	City            Bilingual[string] `yaml:"city"`
	StateOrProvince Bilingual[string] `yaml:"stateorprovince"`
	PostalCode      string            `yaml:"postalcode"`
	Country         Bilingual[string] `yaml:"country"`
	Email           string            `yaml:"email"`
}

type Phone struct {
	Voice string `yaml:"voice"`
	Fax   string `yaml:"fax"`
}

type Attribution struct {
	Title Bilingual[string] `yaml:"title"`
	URL   Bilingual[string] `yaml:"url"`
}
