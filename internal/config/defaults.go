package config

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8088
	}
	if cfg.Server.RequestTimeoutSeconds == 0 {
		cfg.Server.RequestTimeoutSeconds = 60
	}
	if cfg.Storage.CorpusDBPath == "" {
		cfg.Storage.CorpusDBPath = "/usr/local/var/zhcorpus/data/corpus.db"
	}
	if cfg.Storage.DictionaryDBPath == "" {
		cfg.Storage.DictionaryDBPath = "/usr/local/var/zhcorpus/data/dictionary.db"
	}
	if cfg.Storage.GlossIndexPath == "" {
		cfg.Storage.GlossIndexPath = "/usr/local/var/zhcorpus/data/indices/glosses"
	}
	if cfg.Sampling.DefaultSampleSize == 0 {
		cfg.Sampling.DefaultSampleSize = 20
	}
	if cfg.Sampling.MaxSampleSize == 0 {
		cfg.Sampling.MaxSampleSize = 200
	}
	if cfg.Sampling.ExcerptRadius == 0 {
		cfg.Sampling.ExcerptRadius = 40
	}
	if cfg.Sampling.DefaultCountCap == 0 {
		cfg.Sampling.DefaultCountCap = 1000
	}
	if cfg.Sampling.MaxCountCap == 0 {
		cfg.Sampling.MaxCountCap = 100000
	}
	if cfg.Sampling.RankedCap == 0 {
		cfg.Sampling.RankedCap = 5000
	}
	if cfg.Sampling.RankedLimit == 0 {
		cfg.Sampling.RankedLimit = 20
	}
	if cfg.Report.BriefSampleSize == 0 {
		cfg.Report.BriefSampleSize = 5
	}
	if cfg.Report.StandardSampleSize == 0 {
		cfg.Report.StandardSampleSize = 20
	}
	if cfg.Report.FullSampleSize == 0 {
		cfg.Report.FullSampleSize = 20
	}
	if cfg.Report.ContextSegments == 0 {
		cfg.Report.ContextSegments = 2
	}
	if cfg.Report.CapTotal == 0 {
		cfg.Report.CapTotal = 10000
	}
	if cfg.Report.CapPerSource == 0 {
		cfg.Report.CapPerSource = 1000
	}
	if cfg.Report.TimeoutSeconds == 0 {
		cfg.Report.TimeoutSeconds = 30
	}
	if cfg.Cache.TTLSeconds == 0 {
		cfg.Cache.TTLSeconds = 3600
	}
	if cfg.Trigger.DebounceMillis == 0 {
		cfg.Trigger.DebounceMillis = 500
	}
	if len(cfg.Trigger.Kafka.Brokers) > 0 && cfg.Trigger.Kafka.GroupID == "" {
		cfg.Trigger.Kafka.GroupID = "zhcorpus"
	}
}
