package sqlinline

import "strings"

// Job statements are written once against the {{table}} placeholder and
// rendered per kind collection by ForTable.

const qInsertJob = `--sql 3f1c2a9e-5d4b-4e8a-9c71-2b6d0e8f4a15
insert into {{table}} (
  id,
  owner_id,
  provider,
  external_job_id,
  request,
  state,
  result_location,
  error_detail,
  failure_kind,
  credits_charged,
  created_at,
  updated_at
) values (
  gen_random_uuid(),
  $1::text,
  $2::text,
  nullif($3::text, ''),
  $4::jsonb,
  $5::text,
  nullif($6::text, ''),
  nullif($7::text, ''),
  nullif($8::text, ''),
  $9::int,
  now(),
  now()
)
returning id::text, created_at, updated_at;
`

const qSelectJob = `--sql 8b2e7d41-0c6a-4f93-a5d8-61e4c3b9f027
select
  id::text,
  owner_id,
  provider,
  coalesce(external_job_id, ''),
  request,
  state,
  coalesce(result_location, ''),
  coalesce(error_detail, ''),
  coalesce(failure_kind, ''),
  credits_charged,
  created_at,
  updated_at,
  completed_at
from {{table}}
where id = $1::uuid
limit 1;
`

const qUpdateJob = `--sql c6d94a3b-71e2-4b58-8f0d-9a3e5c2b7146
update {{table}}
set
  state = coalesce(nullif($2::text, ''), state),
  external_job_id = coalesce(external_job_id, nullif($3::text, '')),
  result_location = coalesce(nullif($4::text, ''), result_location),
  error_detail = coalesce(nullif($5::text, ''), error_detail),
  failure_kind = coalesce(nullif($6::text, ''), failure_kind),
  completed_at = case
    when $2::text in ('completed', 'failed') then coalesce(completed_at, now())
    else completed_at
  end,
  updated_at = now()
where id = $1::uuid
  and state = any($7::text[]);
`

const qListJobsByOwner = `--sql 52a0e8f7-3d19-4c6b-b2e4-7f8a1d0c9e63
select
  id::text,
  owner_id,
  provider,
  coalesce(external_job_id, ''),
  request,
  state,
  coalesce(result_location, ''),
  coalesce(error_detail, ''),
  coalesce(failure_kind, ''),
  credits_charged,
  created_at,
  updated_at,
  completed_at
from {{table}}
where owner_id = $1::text
  and state = any($2::text[])
  and ($3::timestamptz is null or completed_at >= $3::timestamptz)
order by created_at desc
limit $4::int;
`

const qListPendingJobs = `--sql e91f3b06-4a7c-4d2e-8b55-0c6d2f9a8173
select
  id::text,
  owner_id,
  provider,
  coalesce(external_job_id, ''),
  request,
  state,
  coalesce(result_location, ''),
  coalesce(error_detail, ''),
  coalesce(failure_kind, ''),
  credits_charged,
  created_at,
  updated_at,
  completed_at
from {{table}}
where state in ('pending', 'processing')
  and external_job_id is not null
order by created_at asc;
`

// JobStatements are the job queries rendered for one kind collection.
type JobStatements struct {
	Insert      string
	Select      string
	Update      string
	ListByOwner string
	ListPending string
}

// ForTable renders every job statement against table.
func ForTable(table string) JobStatements {
	render := func(q string) string { return strings.ReplaceAll(q, "{{table}}", table) }
	return JobStatements{
		Insert:      render(qInsertJob),
		Select:      render(qSelectJob),
		Update:      render(qUpdateJob),
		ListByOwner: render(qListJobsByOwner),
		ListPending: render(qListPendingJobs),
	}
}
