package sqlinline

// QEnsureSchema creates the job collections, the change-notification
// trigger, the credit tables and the integration token table. It is safe to
// run on every boot.
const QEnsureSchema = `--sql 0d5e8a1c-6f3b-4b92-9e47-a1c3d5f7b280
create table if not exists video_jobs (
  id uuid primary key default gen_random_uuid(),
  owner_id text not null,
  provider text not null,
  external_job_id text,
  request jsonb not null default '{}'::jsonb,
  state text not null check (state in ('pending', 'processing', 'completed', 'failed', 'deleted')),
  result_location text,
  error_detail text,
  failure_kind text,
  credits_charged int not null default 0,
  created_at timestamptz not null default now(),
  updated_at timestamptz not null default now(),
  completed_at timestamptz
);
create table if not exists image_jobs (like video_jobs including all);
create table if not exists avatar_jobs (like video_jobs including all);

create index if not exists video_jobs_owner_created_idx on video_jobs (owner_id, created_at desc);
create index if not exists image_jobs_owner_created_idx on image_jobs (owner_id, created_at desc);
create index if not exists avatar_jobs_owner_created_idx on avatar_jobs (owner_id, created_at desc);
create index if not exists video_jobs_active_idx on video_jobs (state) where state in ('pending', 'processing');
create index if not exists image_jobs_active_idx on image_jobs (state) where state in ('pending', 'processing');
create index if not exists avatar_jobs_active_idx on avatar_jobs (state) where state in ('pending', 'processing');

create or replace function generation_job_notify() returns trigger as $$
begin
  perform pg_notify(
    'generation_job_changes',
    json_build_object('kind', tg_argv[0], 'owner_id', new.owner_id, 'id', new.id)::text
  );
  return new;
end;
$$ language plpgsql;

drop trigger if exists video_jobs_notify on video_jobs;
create trigger video_jobs_notify after insert or update on video_jobs
  for each row execute function generation_job_notify('video');
drop trigger if exists image_jobs_notify on image_jobs;
create trigger image_jobs_notify after insert or update on image_jobs
  for each row execute function generation_job_notify('image');
drop trigger if exists avatar_jobs_notify on avatar_jobs;
create trigger avatar_jobs_notify after insert or update on avatar_jobs
  for each row execute function generation_job_notify('avatar');

create table if not exists credit_balances (
  user_id text primary key,
  balance int not null default 0 check (balance >= 0),
  created_at timestamptz not null default now(),
  updated_at timestamptz not null default now()
);

create table if not exists credit_ledger (
  id uuid primary key default gen_random_uuid(),
  user_id text not null,
  delta int not null,
  reason text not null,
  created_at timestamptz not null default now()
);

create table if not exists integration_tokens (
  id uuid primary key default gen_random_uuid(),
  provider text not null unique,
  token text not null,
  properties jsonb not null default '{}'::jsonb,
  created_at timestamptz not null default now(),
  updated_at timestamptz not null default now()
);
`

// ChangeChannel is the LISTEN channel fed by generation_job_notify.
const ChangeChannel = "generation_job_changes"
