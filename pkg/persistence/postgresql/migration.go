package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE pipelines (
				id VARCHAR(64) PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				team VARCHAR(255) NOT NULL,
				environment VARCHAR(8) NOT NULL CHECK (environment IN ('dev', 'qa', 'uat', 'prod')),
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_pipelines_team ON pipelines(team);
			CREATE INDEX idx_pipelines_environment ON pipelines(environment);

			CREATE TABLE pipeline_triggers (
				id VARCHAR(64) PRIMARY KEY,
				pipeline_id VARCHAR(64) NOT NULL REFERENCES pipelines(id) ON DELETE CASCADE,
				trigger_type VARCHAR(16) NOT NULL CHECK (trigger_type IN ('manual', 'scheduled', 'dependency', 'event')),
				enabled BOOLEAN NOT NULL DEFAULT true,
				trigger_name VARCHAR(255),
				cron_expression VARCHAR(255),
				timezone VARCHAR(64),
				next_run_at TIMESTAMP WITH TIME ZONE,
				last_run_at TIMESTAMP WITH TIME ZONE,
				depends_on_pipeline_id VARCHAR(64) REFERENCES pipelines(id),
				dependency_condition VARCHAR(16),
				delay_minutes INTEGER NOT NULL DEFAULT 0 CHECK (delay_minutes >= 0),
				event_type VARCHAR(32),
				event_config JSONB,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				CHECK (depends_on_pipeline_id IS NULL OR depends_on_pipeline_id <> pipeline_id)
			);

			CREATE INDEX idx_pipeline_triggers_pipeline_id ON pipeline_triggers(pipeline_id);
			CREATE INDEX idx_pipeline_triggers_depends_on ON pipeline_triggers(depends_on_pipeline_id)
				WHERE trigger_type = 'dependency';

			CREATE TABLE pipeline_executions (
				id VARCHAR(64) PRIMARY KEY,
				pipeline_id VARCHAR(64) NOT NULL,
				status VARCHAR(16) NOT NULL CHECK (status IN ('pending', 'running', 'completed', 'failed', 'cancelled')),
				trigger_id VARCHAR(64),
				trigger_type VARCHAR(16),
				upstream_pipeline_id VARCHAR(64),
				upstream_execution_id VARCHAR(64),
				started_at TIMESTAMP WITH TIME ZONE NOT NULL,
				completed_at TIMESTAMP WITH TIME ZONE,
				duration_ms BIGINT,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_pipeline_executions_pipeline_id ON pipeline_executions(pipeline_id, started_at DESC);
			CREATE INDEX idx_pipeline_executions_trigger_id ON pipeline_executions(trigger_id, started_at DESC);
		`,
		2: `
			CREATE TABLE catalog_entries (
				id VARCHAR(64) PRIMARY KEY,
				layer VARCHAR(8) NOT NULL CHECK (layer IN ('bronze', 'silver', 'gold')),
				table_name VARCHAR(255) NOT NULL,
				environment VARCHAR(8) NOT NULL CHECK (environment IN ('dev', 'qa', 'uat', 'prod')),
				-- NULL marks legacy rows registered before status tracking; they read as ready.
				dataset_status VARCHAR(16) CHECK (dataset_status IN ('pending', 'running', 'ready', 'failed')),
				last_execution_id VARCHAR(64),
				file_path TEXT,
				schema JSONB NOT NULL DEFAULT '[]',
				row_count BIGINT NOT NULL DEFAULT 0,
				file_size BIGINT NOT NULL DEFAULT 0,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				UNIQUE (layer, table_name, environment)
			);

			CREATE INDEX idx_catalog_entries_table_name ON catalog_entries(table_name);

			CREATE TABLE source_watermarks (
				id VARCHAR(64) PRIMARY KEY,
				source_id VARCHAR(255) NOT NULL UNIQUE,
				watermark_column VARCHAR(255) NOT NULL,
				watermark_type VARCHAR(16) NOT NULL CHECK (watermark_type IN ('timestamp', 'integer', 'date')),
				current_value TEXT,
				previous_value TEXT,
				last_run_rows_processed BIGINT NOT NULL DEFAULT 0,
				total_rows_processed BIGINT NOT NULL DEFAULT 0,
				last_successful_run TIMESTAMP WITH TIME ZONE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);
		`,
		3: `
			CREATE TABLE pipeline_dispatches (
				id VARCHAR(64) PRIMARY KEY,
				execution_id VARCHAR(64) NOT NULL,
				pipeline_id VARCHAR(64) NOT NULL,
				trigger_id VARCHAR(64) NOT NULL,
				upstream_pipeline_id VARCHAR(64),
				upstream_execution_id VARCHAR(64),
				fire_at TIMESTAMP WITH TIME ZONE NOT NULL,
				attempts INTEGER NOT NULL DEFAULT 0,
				last_error TEXT,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_pipeline_dispatches_fire_at ON pipeline_dispatches(fire_at);
		`,
	}
}
